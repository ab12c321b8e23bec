package services

import (
	stdcontext "context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type blockCache interface {
	Set(ctx stdcontext.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx stdcontext.Context, key string, dest interface{}) (bool, error)
	Delete(ctx stdcontext.Context, keys ...string) (int64, error)
	Increment(ctx stdcontext.Context, key string) (int64, error)
	Expire(ctx stdcontext.Context, key string, expiration time.Duration) error
	TTL(ctx stdcontext.Context, key string) (time.Duration, error)
	Keys(ctx stdcontext.Context, pattern string) ([]string, error)
}

type eventStore interface {
	CreateSecurityEvent(event *model.SecurityEvent) error
	GetRecentEvents(identity string, since time.Time, limit int) ([]model.SecurityEvent, error)
}

// SecurityService is the block list and abuse monitor. Block entries live in
// the cache under blocked:<identity>; the audit trail is durable rows with a
// short-lived cache mirror for operator dashboards.
//
// Every check here fails open. The monitor protects the service, it is not
// allowed to become its single point of failure.
type SecurityService struct {
	context.DefaultService

	cache  blockCache
	store  eventStore
	monSvc *MonitoringService
}

const SECURITY_SVC = "security_svc"

const (
	failedAttemptThreshold = 5
	failedAttemptWindow    = time.Hour
	autoBlockDuration      = 30 * time.Minute
	securityLogTTL         = 24 * time.Hour
)

// Substrings matched case-insensitively against User-Agent headers.
var suspiciousAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "nessus",
	"openvas", "metasploit", "burp", "zaproxy", "acunetix", "w3af",
}

var allowedMethods = map[string]bool{
	fiber.MethodGet:     true,
	fiber.MethodPost:    true,
	fiber.MethodHead:    true,
	fiber.MethodOptions: true,
}

func (svc SecurityService) Id() string {
	return SECURITY_SVC
}

func (svc *SecurityService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityService) Start() error {
	svc.cache = svc.Service(REDIS_SVC).(*RedisService)
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.monSvc = svc.Service(MONITORING_SVC).(*MonitoringService)
	return nil
}

// ==================== BLOCK LIST ====================

// IsBlocked returns the live block entry for an identity, or nil. Cache
// errors report "not blocked" so an outage never locks everyone out.
func (svc *SecurityService) IsBlocked(identity string) *model.BlockEntry {
	ctx := stdcontext.Background()

	var entry model.BlockEntry
	found, err := svc.cache.GetJSON(ctx, shared.KeyBlocked+identity, &entry)
	if err != nil {
		log.WithError(err).WithField("identity", identity).
			Warn("Block list lookup failed, failing open")
		return nil
	}
	if !found {
		return nil
	}

	return &entry
}

// Block inserts a block entry. A nil ttl blocks until an operator removes it.
func (svc *SecurityService) Block(identity, reason string, ttl *time.Duration) (*model.BlockEntry, error) {
	ctx := stdcontext.Background()
	now := time.Now()

	entry := &model.BlockEntry{
		Reason:    reason,
		BlockedAt: now,
	}

	expiration := time.Duration(0)
	if ttl != nil {
		expiration = *ttl
		expiresAt := now.Add(*ttl)
		entry.ExpiresAt = &expiresAt
	}

	if err := svc.cache.Set(ctx, shared.KeyBlocked+identity, entry, expiration); err != nil {
		return nil, fmt.Errorf("failed to block %s: %w", identity, err)
	}

	svc.LogSecurityEvent("identity_blocked", identity, model.SeverityError, map[string]interface{}{
		"reason":     reason,
		"expires_at": entry.ExpiresAt,
	})

	source := "manual"
	if strings.HasPrefix(reason, "auto:") {
		source = "auto"
	}
	svc.monSvc.ObserveBlock(source)

	log.WithFields(log.Fields{"identity": identity, "reason": reason}).
		Warn("Identity blocked")

	return entry, nil
}

// Unblock removes a block entry and clears the failed-attempt counter so
// the next strike starts from zero. Only the block entry counts toward the
// result: an identity with strikes but no block reports nothing removed.
func (svc *SecurityService) Unblock(identity string) (bool, error) {
	ctx := stdcontext.Background()

	removed, err := svc.cache.Delete(ctx, shared.KeyBlocked+identity)
	if err != nil {
		return false, fmt.Errorf("failed to unblock %s: %w", identity, err)
	}

	if _, err := svc.cache.Delete(ctx, shared.KeyFailedAttempts+identity); err != nil {
		log.WithError(err).WithField("identity", identity).
			Warn("Failed to clear strike counter")
	}

	if removed > 0 {
		svc.LogSecurityEvent("identity_unblocked", identity, model.SeverityInfo, nil)
	}

	return removed > 0, nil
}

// UnblockAll clears every live block entry. Operator escape hatch.
func (svc *SecurityService) UnblockAll() (int64, error) {
	ctx := stdcontext.Background()

	keys, err := svc.cache.Keys(ctx, shared.KeyBlocked+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := svc.cache.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}

	svc.LogSecurityEvent("blocklist_cleared", "all", model.SeverityWarning, map[string]interface{}{
		"removed": removed,
	})

	return removed, nil
}

// ListBlocked enumerates live block entries for the admin surface.
func (svc *SecurityService) ListBlocked() ([]dto.BlockInfoResponse, error) {
	ctx := stdcontext.Background()

	keys, err := svc.cache.Keys(ctx, shared.KeyBlocked+"*")
	if err != nil {
		return nil, err
	}

	blocked := make([]dto.BlockInfoResponse, 0, len(keys))
	for _, key := range keys {
		var entry model.BlockEntry
		found, err := svc.cache.GetJSON(ctx, key, &entry)
		if err != nil || !found {
			continue
		}

		blocked = append(blocked, dto.BlockInfoResponse{
			Identity:  strings.TrimPrefix(key, shared.KeyBlocked),
			Reason:    entry.Reason,
			BlockedAt: entry.BlockedAt,
			ExpiresAt: entry.ExpiresAt,
		})
	}

	return blocked, nil
}

// ==================== ABUSE MONITOR ====================

// RecordSuspiciousActivity adds one strike against an identity and blocks it
// once the strike count crosses the threshold within the window.
func (svc *SecurityService) RecordSuspiciousActivity(identity, eventType string, details map[string]interface{}) {
	ctx := stdcontext.Background()

	svc.LogSecurityEvent(eventType, identity, model.SeverityWarning, details)

	key := shared.KeyFailedAttempts + identity
	count, err := svc.cache.Increment(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to record suspicious activity strike")
		return
	}
	if count == 1 {
		if err := svc.cache.Expire(ctx, key, failedAttemptWindow); err != nil {
			log.WithError(err).Warn("Failed to arm failed-attempt window TTL")
		}
	}

	if count >= failedAttemptThreshold {
		ttl := autoBlockDuration
		if _, err := svc.Block(identity, fmt.Sprintf("auto: %s x%d", eventType, count), &ttl); err != nil {
			log.WithError(err).Error("Failed to auto-block identity")
			return
		}

		svc.LogSecurityEvent("auto_block_triggered", identity, model.SeverityCritical, map[string]interface{}{
			"strikes":    count,
			"event_type": eventType,
		})
	}
}

// RecordInvalidToken registers a failed token presentation from an IP.
func (svc *SecurityService) RecordInvalidToken(ip string) {
	svc.RecordSuspiciousActivity(shared.IdentityPrefixIP+ip, "invalid_token", nil)
}

// FailedAttempts reports the current strike count for an identity.
func (svc *SecurityService) FailedAttempts(identity string) int64 {
	ctx := stdcontext.Background()

	var count int64
	found, err := svc.cache.GetJSON(ctx, shared.KeyFailedAttempts+identity, &count)
	if err != nil || !found {
		return 0
	}
	return count
}

// ==================== HEURISTICS ====================

func IsSuspiciousUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range suspiciousAgents {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

func IsAllowedMethod(method string) bool {
	return allowedMethods[strings.ToUpper(method)]
}

// Guard is the perimeter middleware: IP block check, method allow-list and
// scanner fingerprinting before any handler runs.
func (svc *SecurityService) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getClientIP(c)
		ipIdentity := shared.IdentityPrefixIP + ip
		c.Locals(shared.ClientIP, ip)

		if entry := svc.IsBlocked(ipIdentity); entry != nil {
			appErr := shared.NewBlockedError(entry.Reason, entry.ExpiresAt)
			return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
		}

		if !IsAllowedMethod(c.Method()) {
			svc.RecordSuspiciousActivity(ipIdentity, "disallowed_method", map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
			})
			return shared.ResponseJSON(c, http.StatusMethodNotAllowed, "Method not allowed", nil)
		}

		if ua := c.Get(fiber.HeaderUserAgent); IsSuspiciousUserAgent(ua) {
			svc.RecordSuspiciousActivity(ipIdentity, "suspicious_user_agent", map[string]interface{}{
				"user_agent": ua,
				"path":       c.Path(),
			})
			return shared.ResponseJSON(c, http.StatusForbidden, "Forbidden", nil)
		}

		return c.Next()
	}
}

// ==================== AUDIT TRAIL ====================

// LogSecurityEvent appends a durable audit row and mirrors it into the
// cache for 24h. Neither write may fail the caller's request.
func (svc *SecurityService) LogSecurityEvent(eventType, identity, severity string, details map[string]interface{}) {
	now := time.Now()

	var raw []byte
	if details != nil {
		var err error
		raw, err = sonic.Marshal(details)
		if err != nil {
			log.WithError(err).Warn("Failed to marshal security event details")
			raw = nil
		}
	}

	event := &model.SecurityEvent{
		EventType: eventType,
		Identity:  identity,
		Severity:  severity,
		Details:   raw,
		CreatedAt: now,
	}

	if err := svc.store.CreateSecurityEvent(event); err != nil {
		log.WithError(err).WithField("event_type", eventType).
			Error("Failed to persist security event")
	}

	ctx := stdcontext.Background()
	mirrorKey := fmt.Sprintf("%s%d", shared.KeySecurityLog, now.UnixNano())
	if err := svc.cache.Set(ctx, mirrorKey, event, securityLogTTL); err != nil {
		log.WithError(err).Debug("Failed to mirror security event into cache")
	}
}

// RecentEvents returns the durable audit tail for the admin surface.
func (svc *SecurityService) RecentEvents(identity string, since time.Time, limit int) ([]model.SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return svc.store.GetRecentEvents(identity, since, limit)
}
