package services

import (
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/shared"
)

// GatewayService composes the per-request decision: block list first, then
// rate limit, then token validity, then quota. The ordering is fixed so the
// cheapest refusals fire before any database work.
type GatewayService struct {
	context.DefaultService

	tokenSvc *TokenService
	rateSvc  *RateLimitService
	secSvc   *SecurityService
	monSvc   *MonitoringService
}

const GATEWAY_SVC = "gateway_svc"

func (svc GatewayService) Id() string {
	return GATEWAY_SVC
}

func (svc *GatewayService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *GatewayService) Start() error {
	svc.tokenSvc = svc.Service(TOKEN_SVC).(*TokenService)
	svc.rateSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.secSvc = svc.Service(SECURITY_SVC).(*SecurityService)
	svc.monSvc = svc.Service(MONITORING_SVC).(*MonitoringService)
	return nil
}

// Authorize runs the full pipeline and, on success, debits amount from the
// named pool. Every refusal carries a machine-readable kind.
func (svc *GatewayService) Authorize(tokenID, ip, pool string, amount int64) (*dto.AccessVerdict, error) {
	verdict, err := svc.authorize(tokenID, ip, pool, amount)
	svc.monSvc.ObserveVerdict(pool, err)
	return verdict, err
}

func (svc *GatewayService) authorize(tokenID, ip, pool string, amount int64) (*dto.AccessVerdict, error) {
	identity := shared.IdentityPrefixIP + ip
	if tokenID != "" {
		identity = shared.IdentityPrefixToken + tokenID
	}

	// 1. Block list, both the presented identity and the raw IP.
	if entry := svc.secSvc.IsBlocked(identity); entry != nil {
		return nil, shared.NewBlockedError(entry.Reason, entry.ExpiresAt)
	}
	if tokenID != "" && ip != "" {
		if entry := svc.secSvc.IsBlocked(shared.IdentityPrefixIP + ip); entry != nil {
			return nil, shared.NewBlockedError(entry.Reason, entry.ExpiresAt)
		}
	}

	// 2. Rate limit on the resolved identity.
	allowed, info, _ := svc.rateSvc.IsAllowed(identity, "generate")
	if !allowed {
		svc.monSvc.ObserveRateLimited("generate")
		retryAfter := info.RetryAfter
		if retryAfter <= 0 {
			retryAfter = 60
		}
		return nil, shared.NewRateLimitedError(secondsDuration(retryAfter))
	}

	// 3. Credential presence.
	if tokenID == "" {
		return nil, shared.NewUnauthorizedError("Access token required")
	}

	// 4 + 5. Validity and atomic quota debit.
	token, err := svc.tokenSvc.CheckAndConsume(tokenID, pool, amount, ip)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.Kind == shared.KindNotFound {
			svc.secSvc.RecordInvalidToken(ip)
		}
		return nil, err
	}

	svc.monSvc.ObserveQuotaConsumed(pool, amount)

	// 6. Verdict for the request-handling layer.
	return &dto.AccessVerdict{
		Allowed:   true,
		Token:     dto.NewTokenInfo(token),
		Pool:      pool,
		Remaining: token.PoolRemaining(pool),
	}, nil
}

// Validate runs the pipeline without consuming quota: block list, rate
// limit and token validity only.
func (svc *GatewayService) Validate(tokenID, ip string) (*dto.TokenInfo, error) {
	identity := shared.IdentityPrefixIP + ip
	if tokenID != "" {
		identity = shared.IdentityPrefixToken + tokenID
	}

	if entry := svc.secSvc.IsBlocked(identity); entry != nil {
		return nil, shared.NewBlockedError(entry.Reason, entry.ExpiresAt)
	}

	allowed, info, _ := svc.rateSvc.IsAllowed(identity, "token_validate")
	if !allowed {
		svc.monSvc.ObserveRateLimited("token_validate")
		return nil, shared.NewRateLimitedError(secondsDuration(info.RetryAfter))
	}

	token, err := svc.tokenSvc.Lookup(tokenID)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.Kind == shared.KindNotFound {
			svc.secSvc.RecordInvalidToken(ip)
		}
		return nil, err
	}

	info2 := dto.NewTokenInfo(token)
	return &info2, nil
}

func secondsDuration(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Protect is the middleware form for routes that need a valid token but
// handle consumption themselves. The verified token id lands in Locals.
func (svc *GatewayService) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenID := c.Get("X-Access-Token")
		ip := getClientIP(c)

		if _, err := svc.Validate(tokenID, ip); err != nil {
			if appErr, ok := shared.GetAppError(err); ok {
				return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
			}
			log.WithError(err).Error("Gateway validation failed")
			return shared.ResponseInternalError(c, err)
		}

		c.Locals(shared.TokenID, tokenID)
		c.Locals(shared.ClientIP, ip)
		return c.Next()
	}
}
