package services

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

// tokenStore is the slice of the database layer the token lifecycle needs.
type tokenStore interface {
	CreateToken(token *model.AccessToken) (*model.AccessToken, error)
	GetToken(id string) (*model.AccessToken, error)
	UpdateToken(token *model.AccessToken) error
	DeactivateToken(id string) (bool, error)
	GetActiveTokenByFingerprint(fingerprint, tier string) (*model.AccessToken, error)
	DeactivateTokensByFingerprint(fingerprint, tier string) (int64, error)
	ListTokens(tier string, active *bool, page, pageSize int) ([]model.AccessToken, int64, error)
	ConsumePool(id, pool string, amount int64, ip string) (bool, error)
}

// TokenService owns the token lifecycle: issuance, validity, quota
// consumption and subscription renewals.
type TokenService struct {
	context.DefaultService

	store tokenStore
}

const TOKEN_SVC = "token_svc"

func (svc TokenService) Id() string {
	return TOKEN_SVC
}

func (svc *TokenService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *TokenService) Start() error {
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// OwnerFingerprint derives the stored one-way hash from an external owner
// id. The raw id never reaches the database.
func OwnerFingerprint(ownerID string) string {
	sum := sha256.Sum256([]byte(ownerID))
	return hex.EncodeToString(sum[:])
}

// Issue creates a token for the requested tier. Free grants are deduplicated
// per owner; a paid subscription purchase retires the owner's free token and
// a repeat purchase of the same tier extends the existing subscription
// instead of minting a second credential.
func (svc *TokenService) Issue(req dto.IssueTokenRequest) (*dto.IssueTokenResponse, error) {
	tariff, ok := model.GetTariff(req.Tier)
	if !ok {
		return nil, shared.NewBadRequestError(nil, "Unknown tariff tier")
	}

	now := time.Now()
	fingerprint := ""
	if req.OwnerID != "" {
		fingerprint = OwnerFingerprint(req.OwnerID)
	}

	if fingerprint != "" {
		if req.Tier == model.TierFree {
			existing, err := svc.store.GetActiveTokenByFingerprint(fingerprint, model.TierFree)
			if err != nil {
				return nil, shared.NewInternalError(err, "Failed to check existing grants")
			}
			if existing != nil && existing.IsCurrentlyValid(now) {
				return nil, shared.NewDuplicateFreeGrantError(fingerprint)
			}
		}

		if tariff.IsSubscription {
			if resp, handled, err := svc.extendExistingSubscription(fingerprint, req.Tier, tariff, now); handled || err != nil {
				return resp, err
			}

			retired, err := svc.store.DeactivateTokensByFingerprint(fingerprint, model.TierFree)
			if err != nil {
				return nil, shared.NewInternalError(err, "Failed to retire free grant")
			}
			if retired > 0 {
				log.WithFields(log.Fields{"tier": req.Tier, "retired": retired}).
					Info("Free grant superseded by paid subscription")
			}
		}
	}

	token := &model.AccessToken{
		ID:               uuid.New().String(),
		Tier:             req.Tier,
		GigachatLimit:    tariff.GigachatTokens,
		OpenAILimit:      tariff.OpenAITokens,
		IsActive:         true,
		OwnerFingerprint: fingerprint,
	}

	if tariff.DurationDays != nil {
		expires := now.AddDate(0, 0, *tariff.DurationDays)
		token.ExpiresAt = &expires
	}
	if tariff.IsSubscription {
		renewal := now.AddDate(0, 0, *tariff.DurationDays)
		token.SubscriptionStart = &now
		token.NextRenewal = &renewal
	}

	created, err := svc.store.CreateToken(token)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to create token")
	}

	log.WithFields(log.Fields{"tier": created.Tier}).Info("Issued access token")

	return svc.issueResponse(created), nil
}

// extendExistingSubscription pushes the expiry of an already-active
// same-tier subscription forward by one period. Usage counters are kept;
// the renewal cycle is untouched.
func (svc *TokenService) extendExistingSubscription(fingerprint, tier string, tariff model.Tariff, now time.Time) (*dto.IssueTokenResponse, bool, error) {
	existing, err := svc.store.GetActiveTokenByFingerprint(fingerprint, tier)
	if err != nil {
		return nil, false, shared.NewInternalError(err, "Failed to check existing subscription")
	}
	if existing == nil || !existing.IsCurrentlyValid(now) {
		return nil, false, nil
	}

	base := now
	if existing.ExpiresAt != nil && existing.ExpiresAt.After(now) {
		base = *existing.ExpiresAt
	}
	expires := base.AddDate(0, 0, *tariff.DurationDays)
	existing.ExpiresAt = &expires

	if err := svc.store.UpdateToken(existing); err != nil {
		return nil, false, shared.NewInternalError(err, "Failed to extend subscription")
	}

	log.WithFields(log.Fields{"tier": tier, "expires_at": expires}).
		Info("Extended existing subscription")

	return svc.issueResponse(existing), true, nil
}

func (svc *TokenService) issueResponse(t *model.AccessToken) *dto.IssueTokenResponse {
	return &dto.IssueTokenResponse{
		Token:     t.ID,
		Tier:      t.Tier,
		ExpiresAt: t.ExpiresAt,
		Gigachat: dto.PoolSnapshot{
			Limit:     t.GigachatLimit,
			Used:      t.GigachatUsed,
			Remaining: t.PoolRemaining(shared.PoolGigachat),
		},
		OpenAI: dto.PoolSnapshot{
			Limit:     t.OpenAILimit,
			Used:      t.OpenAIUsed,
			Remaining: t.PoolRemaining(shared.PoolOpenAI),
		},
	}
}

// Lookup fetches a token and enforces validity. Expiry is applied lazily:
// a token found past its expiry is deactivated on the spot, so the answer
// never depends on scheduler timing.
func (svc *TokenService) Lookup(id string) (*model.AccessToken, error) {
	if id == "" {
		return nil, shared.NewUnauthorizedError("Access token required")
	}

	token, err := svc.store.GetToken(id)
	if err != nil {
		if IsNotFound(err) {
			return nil, shared.NewNotFoundError(err, "Token not found")
		}
		// An unreachable store is not an invalid credential. The caller
		// must never treat this as an abuse signal.
		return nil, shared.NewSubstrateUnavailableError(err)
	}

	now := time.Now()
	if token.IsActive && token.IsExpired(now) {
		if _, err := svc.store.DeactivateToken(token.ID); err != nil {
			log.WithError(err).Warn("Failed to deactivate expired token")
		}
		token.IsActive = false
	}

	if !token.IsActive {
		return nil, shared.NewInactiveError("Token is expired or deactivated")
	}

	return token, nil
}

// CheckAndConsume atomically debits amount from the named pool. A disabled
// pool (limit 0) is refused up front without touching the counters.
func (svc *TokenService) CheckAndConsume(id, pool string, amount int64, ip string) (*model.AccessToken, error) {
	token, err := svc.Lookup(id)
	if err != nil {
		return nil, err
	}

	if token.PoolLimit(pool) == model.LimitDisabled {
		return nil, shared.NewQuotaExceededError(pool, 0)
	}

	ok, err := svc.store.ConsumePool(token.ID, pool, amount, ip)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to consume quota")
	}
	if !ok {
		// Guard failed: either not enough quota or the token was raced
		// into deactivation. Re-read to report what is left.
		fresh, ferr := svc.store.GetToken(token.ID)
		remaining := int64(0)
		if ferr == nil {
			remaining = fresh.PoolRemaining(pool)
		}
		return nil, shared.NewQuotaExceededError(pool, remaining)
	}

	fresh, err := svc.store.GetToken(token.ID)
	if err != nil {
		return token, nil
	}
	return fresh, nil
}

func (svc *TokenService) Deactivate(id string) error {
	done, err := svc.store.DeactivateToken(id)
	if err != nil {
		return shared.NewInternalError(err, "Failed to deactivate token")
	}
	if !done {
		return shared.NewNotFoundError(nil, "No active token with that id")
	}

	log.Info("Deactivated access token")
	return nil
}

func (svc *TokenService) Info(id string) (*dto.TokenInfo, error) {
	token, err := svc.store.GetToken(id)
	if err != nil {
		if IsNotFound(err) {
			return nil, shared.NewNotFoundError(err, "Token not found")
		}
		return nil, shared.NewSubstrateUnavailableError(err)
	}

	info := dto.NewTokenInfo(token)
	return &info, nil
}

func (svc *TokenService) List(req dto.TokenListRequest) (*dto.TokenListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	tokens, total, err := svc.store.ListTokens(req.Tier, req.Active, page, pageSize)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to list tokens")
	}

	infos := make([]dto.TokenInfo, 0, len(tokens))
	for i := range tokens {
		infos = append(infos, dto.NewTokenInfo(&tokens[i]))
	}

	return &dto.TokenListResponse{Tokens: infos, Total: total, Page: page}, nil
}
