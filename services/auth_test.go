package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type fakeAdminStore struct {
	admins    map[string]*model.AdminUser
	lastLogin string
}

func (f *fakeAdminStore) GetAdminByUsername(username string) (*model.AdminUser, error) {
	admin, ok := f.admins[username]
	if !ok {
		return nil, errors.New("NOT_FOUND: record not found")
	}
	return admin, nil
}

func (f *fakeAdminStore) UpdateAdminLastLogin(adminID string) error {
	f.lastLogin = adminID
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeAdminStore) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	store := &fakeAdminStore{admins: map[string]*model.AdminUser{
		"ops": {ID: "admin-1", Username: "ops", Password: string(hashed), IsActive: true},
	}}

	svc := &AuthService{
		store:  store,
		jwtSvc: &JWTService{AccessTokenDuration: time.Hour, jwtSecretKey: "test-secret"},
	}
	return svc, store
}

func TestLoginSuccess(t *testing.T) {
	svc, store := newAuthFixture(t)

	resp, err := svc.Login(dto.AdminLoginRequest{Username: "ops", Password: "hunter2"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "admin-1", store.lastLogin)

	adminID, err := svc.jwtSvc.VerifyJWTToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", adminID)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(dto.AdminLoginRequest{Username: "ops", Password: "wrong"})
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindUnauthorized, appErr.Kind)
}

func TestLoginUnknownUserSameRefusal(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, badUser := svc.Login(dto.AdminLoginRequest{Username: "nobody", Password: "hunter2"})
	_, badPass := svc.Login(dto.AdminLoginRequest{Username: "ops", Password: "wrong"})

	// Refusals must not reveal whether the account exists.
	require.Error(t, badUser)
	require.Error(t, badPass)
	assert.Equal(t, badUser.Error(), badPass.Error())
}
