package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError(errors.New("record not found"), "Token not found")

	got, ok := GetAppError(appErr)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, got.Kind)

	// Wrapped errors are still recognised.
	wrapped := fmt.Errorf("lookup failed: %w", appErr)
	got, ok = GetAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, got.Kind)

	_, ok = GetAppError(errors.New("plain error"))
	assert.False(t, ok)

	_, ok = GetAppError(nil)
	assert.False(t, ok)
}

func TestErrorStatusCodes(t *testing.T) {
	ttl := time.Now().Add(time.Hour)

	cases := []struct {
		err    *AppError
		kind   string
		status int
	}{
		{NewNotFoundError(nil, "missing"), KindNotFound, http.StatusNotFound},
		{NewInactiveError("dead"), KindInactive, http.StatusUnauthorized},
		{NewQuotaExceededError("gigachat", 0), KindQuotaExceeded, http.StatusPaymentRequired},
		{NewRateLimitedError(time.Minute), KindRateLimited, http.StatusTooManyRequests},
		{NewBlockedError("fraud", &ttl), KindBlocked, http.StatusForbidden},
		{NewDuplicateFreeGrantError("abc"), KindDuplicateFreeGrant, http.StatusConflict},
		{NewSubstrateUnavailableError(nil), KindSubstrateUnavailable, http.StatusServiceUnavailable},
		{NewBadRequestError(nil, "bad"), KindBadRequest, http.StatusBadRequest},
		{NewUnauthorizedError("no"), KindUnauthorized, http.StatusUnauthorized},
		{NewForbiddenError(nil, "no"), KindForbidden, http.StatusForbidden},
		{NewInternalError(nil, "boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.kind, tc.err.Kind)
		assert.Equal(t, tc.status, tc.err.StatusCode, tc.kind)
	}
}

func TestQuotaExceededErrorData(t *testing.T) {
	err := NewQuotaExceededError("openai", 42)

	data, ok := err.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "openai", data["pool"])
	assert.Equal(t, int64(42), data["remaining"])
	assert.Contains(t, err.Message, "openai")
}

func TestRateLimitedErrorData(t *testing.T) {
	err := NewRateLimitedError(90 * time.Second)

	data, ok := err.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 90, data["retry_after"])
}

func TestBlockedErrorData(t *testing.T) {
	expiresAt := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	err := NewBlockedError("auto: invalid_token x5", &expiresAt)

	data, ok := err.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "auto: invalid_token x5", data["reason"])
	assert.Equal(t, "2026-08-31T12:00:00Z", data["expires_at"])

	// Indefinite blocks carry no expiry.
	err = NewBlockedError("fraud", nil)
	data = err.Data.(map[string]interface{})
	assert.NotContains(t, data, "expires_at")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInternalError(cause, "write failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "disk full")
}
