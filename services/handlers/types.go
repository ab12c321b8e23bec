package handlers

import (
	"time"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
)

type TokenServiceInterface interface {
	Issue(req dto.IssueTokenRequest) (*dto.IssueTokenResponse, error)
	Info(id string) (*dto.TokenInfo, error)
	Deactivate(id string) error
	List(req dto.TokenListRequest) (*dto.TokenListResponse, error)
}

type GatewayServiceInterface interface {
	Authorize(tokenID, ip, pool string, amount int64) (*dto.AccessVerdict, error)
	Validate(tokenID, ip string) (*dto.TokenInfo, error)
}

type SecurityServiceInterface interface {
	Block(identity, reason string, ttl *time.Duration) (*model.BlockEntry, error)
	Unblock(identity string) (bool, error)
	UnblockAll() (int64, error)
	ListBlocked() ([]dto.BlockInfoResponse, error)
	RecentEvents(identity string, since time.Time, limit int) ([]model.SecurityEvent, error)
}

type RateLimitServiceInterface interface {
	ActiveWindows(identity string) (map[string]int, error)
	ResetRateLimit(identity, endpointType string) error
}

type SchedulerServiceInterface interface {
	Status() *dto.SchedulerStatusResponse
	PruneReport(dryRun bool) (*dto.CleanupReport, error)
}

type AuthServiceInterface interface {
	Login(req dto.AdminLoginRequest) (*dto.AdminLoginResponse, error)
}
