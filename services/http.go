package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	log "github.com/sirupsen/logrus"

	_ "github.com/ghostwriter-labs/gate_api/docs"
	"github.com/ghostwriter-labs/gate_api/services/handlers"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type HttpService struct {
	context.DefaultService

	tokenSvc   *TokenService
	gatewaySvc *GatewayService
	secSvc     *SecurityService
	rateSvc    *RateLimitService
	schedSvc   *SchedulerService
	authSvc    *AuthService
	monSvc     *MonitoringService

	tokenHandler   *handlers.TokenHandler
	gatewayHandler *handlers.GatewayHandler
	adminHandler   *handlers.AdminHandler

	port      int
	issuerKey string
	server    *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	svc.issuerKey = os.Getenv("ISSUER_API_KEY")

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.tokenSvc = svc.Service(TOKEN_SVC).(*TokenService)
	svc.gatewaySvc = svc.Service(GATEWAY_SVC).(*GatewayService)
	svc.secSvc = svc.Service(SECURITY_SVC).(*SecurityService)
	svc.rateSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.schedSvc = svc.Service(SCHEDULER_SVC).(*SchedulerService)
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.monSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.tokenHandler = handlers.NewTokenHandler(svc.tokenSvc, svc.gatewaySvc)
	svc.gatewayHandler = handlers.NewGatewayHandler(svc.gatewaySvc)
	svc.adminHandler = handlers.NewAdminHandler(svc.authSvc, svc.tokenSvc, svc.secSvc, svc.rateSvc, svc.schedSvc)

	app := fiber.New(fiber.Config{
		ErrorHandler: svc.errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Access-Token, X-Api-Key",
	}))
	app.Use(MonitoringMiddleware(svc.monSvc))
	app.Use(svc.secSvc.Guard())
	app.Use(svc.rateSvc.IPRateLimit())

	svc.setupRoutes(app)

	svc.server = app

	log.Printf("HTTP server listening on :%d", svc.port)
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *HttpService) setupRoutes(app *fiber.App) {
	app.Get("/ping", svc.ping)
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api/v1")
	api.Get("/ping", svc.ping)
	api.Get("/tariffs", svc.tokenHandler.ListTariffs)

	api.Post("/tokens", svc.issuerKeyRequired(), svc.rateSvc.RateLimit("token_issue"), svc.tokenHandler.IssueToken)
	api.Get("/tokens/validate", svc.tokenHandler.ValidateToken)

	api.Post("/consume", svc.gatewayHandler.Consume)

	api.Post("/admin/login", svc.rateSvc.RateLimit("api_strict"), svc.adminHandler.Login)

	admin := api.Group("/admin", svc.authSvc.RequiredAuth(), svc.rateSvc.RateLimit("admin_api"))
	admin.Get("/tokens", svc.adminHandler.ListTokens)
	admin.Get("/tokens/:id", svc.adminHandler.TokenInfo)
	admin.Post("/tokens/:id/deactivate", svc.adminHandler.DeactivateToken)

	// Mutations stay on POST: the perimeter guard only admits
	// GET/POST/HEAD/OPTIONS.
	admin.Get("/blocklist", svc.adminHandler.ListBlocked)
	admin.Post("/block", svc.adminHandler.BlockIdentity)
	admin.Post("/unblock", svc.adminHandler.UnblockAll)
	admin.Post("/unblock/:identity", svc.adminHandler.UnblockIdentity)

	admin.Get("/ratelimits", svc.adminHandler.RateLimits)
	admin.Post("/ratelimits/reset/:identity/:endpointType", svc.adminHandler.ResetRateLimit)

	admin.Get("/scheduler", svc.adminHandler.SchedulerStatus)
	admin.Post("/cleanup", svc.adminHandler.Cleanup)
	admin.Get("/security/events", svc.adminHandler.SecurityEvents)

	app.Use(func(c *fiber.Ctx) error {
		return shared.ResponseNotFound(c)
	})
}

// issuerKeyRequired gates token issuance to the trusted issuing backend.
func (svc *HttpService) issuerKeyRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc.issuerKey == "" || c.Get("X-Api-Key") != svc.issuerKey {
			return shared.ResponseUnauthorized(c)
		}
		return c.Next()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

func (svc *HttpService) errorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
