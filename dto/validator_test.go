package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenRequestValidation(t *testing.T) {
	v := GetValidator()

	assert.NoError(t, v.Struct(IssueTokenRequest{Tier: "FREE"}))
	assert.NoError(t, v.Struct(IssueTokenRequest{Tier: "BASIC", OwnerID: "user-1"}))
	assert.NoError(t, v.Struct(IssueTokenRequest{Tier: "DEVELOPER"}))

	assert.Error(t, v.Struct(IssueTokenRequest{}))
	assert.Error(t, v.Struct(IssueTokenRequest{Tier: "PLATINUM"}))
	assert.Error(t, v.Struct(IssueTokenRequest{Tier: "free"}))
}

func TestConsumeRequestValidation(t *testing.T) {
	v := GetValidator()

	assert.NoError(t, v.Struct(ConsumeRequest{Pool: "gigachat", Amount: 100}))
	assert.NoError(t, v.Struct(ConsumeRequest{Pool: "openai", Amount: 1}))
	assert.NoError(t, v.Struct(ConsumeRequest{Pool: "gigachat"})) // amount defaulted later

	assert.Error(t, v.Struct(ConsumeRequest{Pool: "gigachat", Amount: 100_001}))

	assert.Error(t, v.Struct(ConsumeRequest{Pool: "mistral", Amount: 1}))
	assert.Error(t, v.Struct(ConsumeRequest{Amount: 1}))
}

func TestAdminLoginRequestValidation(t *testing.T) {
	v := GetValidator()

	assert.NoError(t, v.Struct(AdminLoginRequest{Username: "ops", Password: "correct-horse"}))
	assert.Error(t, v.Struct(AdminLoginRequest{Username: "ops"}))
	assert.Error(t, v.Struct(AdminLoginRequest{Password: "correct-horse"}))
	assert.Error(t, v.Struct(AdminLoginRequest{Username: "ops", Password: "short"}))
}

func TestFormatValidationErrors(t *testing.T) {
	v := GetValidator()

	err := v.Struct(IssueTokenRequest{Tier: "PLATINUM"})
	require.Error(t, err)

	formatted := FormatValidationErrors(err)
	require.Len(t, formatted, 1)
	assert.Equal(t, "Tier", formatted[0].Field)
	assert.Contains(t, formatted[0].Message, "tariff tier")

	resp := CreateValidationErrorResponse(err)
	assert.Equal(t, 400, resp.Code)
	assert.Len(t, resp.Errors, 1)
}
