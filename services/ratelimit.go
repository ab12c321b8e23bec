package services

import (
	stdcontext "context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/shared"
)

// counterCache is the slice of the cache substrate the limiter needs.
type counterCache interface {
	Increment(ctx stdcontext.Context, key string) (int64, error)
	Expire(ctx stdcontext.Context, key string, expiration time.Duration) error
	TTL(ctx stdcontext.Context, key string) (time.Duration, error)
	Delete(ctx stdcontext.Context, keys ...string) (int64, error)
	Keys(ctx stdcontext.Context, pattern string) ([]string, error)
}

// RateLimitService throttles request rates with fixed windows in the cache.
// The counter's TTL is the window: the first increment arms it, expiry
// resets the count to zero implicitly.
type RateLimitService struct {
	context.DefaultService

	configs map[string]*RateLimitConfig
	mutex   sync.RWMutex

	cache counterCache
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	EndpointType string
	MaxRequests  int64
	WindowSize   time.Duration
	Description  string
	IsActive     bool
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const rateLimitRetryDelay = 50 * time.Millisecond

func (svc *RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *context.Context) error {
	svc.configs = make(map[string]*RateLimitConfig)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.cache = svc.Service(REDIS_SVC).(*RedisService)
	svc.initDefaultConfigs()
	return nil
}

// ==================== CONFIGURATION MANAGEMENT ====================

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*RateLimitConfig{
		"generate": {
			EndpointType: "generate",
			MaxRequests:  20,
			WindowSize:   time.Minute,
			Description:  "Content generation rate limit",
			IsActive:     true,
		},
		"token_issue": {
			EndpointType: "token_issue",
			MaxRequests:  5,
			WindowSize:   15 * time.Minute,
			Description:  "Token issuance rate limit",
			IsActive:     true,
		},
		"token_validate": {
			EndpointType: "token_validate",
			MaxRequests:  60,
			WindowSize:   time.Minute,
			Description:  "Token validation rate limit",
			IsActive:     true,
		},
		"admin_api": {
			EndpointType: "admin_api",
			MaxRequests:  30,
			WindowSize:   time.Minute,
			Description:  "Administrative API rate limit",
			IsActive:     true,
		},
		"api_general": {
			EndpointType: "api_general",
			MaxRequests:  120,
			WindowSize:   time.Minute,
			Description:  "General API rate limit per identity",
			IsActive:     true,
		},
		"api_strict": {
			EndpointType: "api_strict",
			MaxRequests:  10,
			WindowSize:   10 * time.Minute,
			Description:  "Strict rate limit for abuse prevention",
			IsActive:     true,
		},
	}
}

func (svc *RateLimitService) GetConfig(endpointType string) (RateLimitConfig, bool) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	config, ok := svc.configs[endpointType]
	if !ok {
		return RateLimitConfig{}, false
	}
	return *config, true
}

func (svc *RateLimitService) SetConfig(config RateLimitConfig) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs[config.EndpointType] = &config
}

// ==================== CORE RATE LIMITING LOGIC ====================

func rateLimitKey(identity, endpointType string) string {
	return shared.KeyRateLimit + identity + ":" + endpointType
}

// IsAllowed applies one fixed-window increment for identity. Cache failures
// fail open after a single retry: a broken limiter must never take the
// whole service down with it.
func (svc *RateLimitService) IsAllowed(identity, endpointType string) (bool, *dto.RateLimitInfo, error) {
	svc.mutex.RLock()
	config, exists := svc.configs[endpointType]
	svc.mutex.RUnlock()

	if !exists || !config.IsActive {
		return true, &dto.RateLimitInfo{Allowed: true, Remaining: -1}, nil
	}

	ctx := stdcontext.Background()
	key := rateLimitKey(identity, endpointType)

	count, err := svc.cache.Increment(ctx, key)
	if err != nil {
		time.Sleep(rateLimitRetryDelay)
		count, err = svc.cache.Increment(ctx, key)
	}
	if err != nil {
		log.WithError(err).WithField("endpoint_type", endpointType).
			Warn("Rate limit cache unavailable, failing open")
		return true, &dto.RateLimitInfo{Allowed: true, Remaining: -1}, err
	}

	// First hit of the window arms the TTL.
	if count == 1 {
		if err := svc.cache.Expire(ctx, key, config.WindowSize); err != nil {
			log.WithError(err).Warn("Failed to arm rate limit window TTL")
		}
	}

	if count > config.MaxRequests {
		retryAfter := config.WindowSize
		if ttl, err := svc.cache.TTL(ctx, key); err == nil && ttl > 0 {
			retryAfter = ttl
		}

		resetTime := time.Now().Add(retryAfter)
		return false, &dto.RateLimitInfo{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  &resetTime,
			RetryAfter: int(retryAfter.Seconds()),
		}, nil
	}

	remaining := config.MaxRequests - count
	resetTime := time.Now().Add(config.WindowSize)
	if ttl, err := svc.cache.TTL(ctx, key); err == nil && ttl > 0 {
		resetTime = time.Now().Add(ttl)
	}

	return true, &dto.RateLimitInfo{
		Allowed:   true,
		Remaining: int(remaining),
		ResetTime: &resetTime,
	}, nil
}

// ==================== MIDDLEWARE FUNCTIONS ====================

// RateLimit creates a rate limiting middleware for specific endpoint types.
// Token identity is preferred over IP so NAT neighbours don't share a bucket.
func (svc *RateLimitService) RateLimit(endpointType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := requestIdentity(c)

		allowed, info, err := svc.IsAllowed(identity, endpointType)
		if err != nil {
			// Already failed open inside IsAllowed
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !allowed {
			return svc.handleRateLimitExceeded(c, info)
		}

		return c.Next()
	}
}

// IPRateLimit applies general rate limiting by IP address
func (svc *RateLimitService) IPRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := shared.IdentityPrefixIP + getClientIP(c)

		allowed, info, err := svc.IsAllowed(ip, "api_general")
		if err != nil {
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !allowed {
			return svc.handleRateLimitExceeded(c, info)
		}

		return c.Next()
	}
}

// ==================== HELPER FUNCTIONS ====================

// requestIdentity resolves who is making this request: the token identity
// when one was presented, the client IP otherwise.
func requestIdentity(c *fiber.Ctx) string {
	if tokenID := c.Locals(shared.TokenID); tokenID != nil {
		if id, ok := tokenID.(string); ok && id != "" {
			return shared.IdentityPrefixToken + id
		}
	}
	if tokenID := c.Get("X-Access-Token"); tokenID != "" {
		return shared.IdentityPrefixToken + tokenID
	}
	return shared.IdentityPrefixIP + getClientIP(c)
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info *dto.RateLimitInfo) {
	if info == nil {
		return
	}

	if info.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}

	if info.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}

	if info.RetryAfter > 0 {
		c.Set("Retry-After", strconv.Itoa(info.RetryAfter))
	}
}

func (svc *RateLimitService) handleRateLimitExceeded(c *fiber.Ctx, info *dto.RateLimitInfo) error {
	response := map[string]interface{}{
		"error":       "Rate limit exceeded",
		"retry_after": info.RetryAfter,
	}
	if info.ResetTime != nil {
		response["reset_time"] = info.ResetTime.Unix()
	}

	return shared.ResponseJSON(c, http.StatusTooManyRequests,
		"Too many requests. Please try again later.", response)
}

// ==================== UTILITY FUNCTIONS ====================

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}

// ==================== ADMIN FUNCTIONS ====================

// ActiveWindows lists live counters for operator introspection. Best effort:
// enumeration is not part of the limiter's correctness.
func (svc *RateLimitService) ActiveWindows(identity string) (map[string]int, error) {
	ctx := stdcontext.Background()

	pattern := shared.KeyRateLimit + "*"
	if identity != "" {
		pattern = shared.KeyRateLimit + identity + ":*"
	}

	keys, err := svc.cache.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	windows := make(map[string]int, len(keys))
	for _, key := range keys {
		ttl, err := svc.cache.TTL(ctx, key)
		if err != nil {
			continue
		}
		windows[strings.TrimPrefix(key, shared.KeyRateLimit)] = int(ttl.Seconds())
	}

	return windows, nil
}

// ResetRateLimit clears the live window for an identity and endpoint type.
func (svc *RateLimitService) ResetRateLimit(identity, endpointType string) error {
	ctx := stdcontext.Background()

	_, err := svc.cache.Delete(ctx, rateLimitKey(identity, endpointType))
	if err != nil {
		return fmt.Errorf("failed to reset rate limit for %s/%s: %w", identity, endpointType, err)
	}
	return nil
}
