package services

import (
	"net/http"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type adminStore interface {
	GetAdminByUsername(username string) (*model.AdminUser, error)
	UpdateAdminLastLogin(adminID string) error
}

// AuthService authenticates operators for the administrative surface.
// Bearer tokens gating content generation never pass through here.
type AuthService struct {
	context.DefaultService

	store  adminStore
	jwtSvc *JWTService
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	return nil
}

// Login verifies operator credentials and returns a signed session token.
func (svc *AuthService) Login(req dto.AdminLoginRequest) (*dto.AdminLoginResponse, error) {
	admin, err := svc.store.GetAdminByUsername(req.Username)
	if err != nil {
		// Same refusal whether the user exists or not.
		return nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		return nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	if err := svc.store.UpdateAdminLastLogin(admin.ID); err != nil {
		log.WithError(err).Warn("Failed to update admin last login")
	}

	return svc.jwtSvc.GenerateToken(admin.ID)
}

// RequiredAuth guards admin routes behind a valid operator JWT.
func (svc *AuthService) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		token, err := svc.jwtSvc.ExtractTokenFromHeader(authHeader)
		if err != nil {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", err.Error())
		}

		adminID, err := svc.jwtSvc.VerifyJWTToken(token)
		if err != nil || adminID == "" {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", "Invalid JWT token")
		}

		c.Locals(shared.AdminID, adminID)
		return c.Next()
	}
}
