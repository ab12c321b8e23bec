package model

import (
	"time"
)

// Token tiers. Hidden tiers are never offered publicly; they are issued
// through the seed tool only.
const (
	TierFree        = "FREE"
	TierBasic       = "BASIC"
	TierPro         = "PRO"
	TierUnlimited   = "UNLIMITED"
	TierHiddenShort = "HIDDEN_SHORT"
	TierHiddenLong  = "HIDDEN_LONG"
	TierDeveloper   = "DEVELOPER"
)

// Pool limit sentinels: -1 means unlimited, 0 means the pool is disabled.
const (
	LimitUnlimited int64 = -1
	LimitDisabled  int64 = 0
)

// AccessToken is the anonymous bearer credential gating content generation.
// The ID itself is the secret: a random UUID handed out once at issuance.
type AccessToken struct {
	ID   string `json:"id" gorm:"primaryKey;type:text;not null"`
	Tier string `json:"tier" gorm:"not null;index;size:20"`

	GigachatLimit int64 `json:"gigachat_limit" gorm:"not null"`
	GigachatUsed  int64 `json:"gigachat_used" gorm:"default:0;not null"`
	OpenAILimit   int64 `json:"openai_limit" gorm:"not null"`
	OpenAIUsed    int64 `json:"openai_used" gorm:"default:0;not null"`

	IsActive  bool       `json:"is_active" gorm:"default:true;not null;index"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`

	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	NextRenewal       *time.Time `json:"next_renewal,omitempty" gorm:"index"`

	TotalUsed   int64      `json:"total_used" gorm:"default:0;not null"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	LastKnownIP string     `json:"last_known_ip,omitempty" gorm:"size:45"`

	// One-way hash of an external identity (e.g. a chat-platform user id).
	// Used only to keep one active FREE token per owner; never reversible.
	OwnerFingerprint string `json:"-" gorm:"index;size:64"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// IsCurrentlyValid is the single definition of token validity shared by the
// lazy on-read check and the scheduler's eager expiry sweep.
func (t *AccessToken) IsCurrentlyValid(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return false
	}
	return true
}

func (t *AccessToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// PoolLimit returns the configured limit for a pool name. An unknown name
// reads as a disabled pool so a typo can never debit the wrong counter.
func (t *AccessToken) PoolLimit(pool string) int64 {
	switch pool {
	case "gigachat":
		return t.GigachatLimit
	case "openai":
		return t.OpenAILimit
	default:
		return LimitDisabled
	}
}

// PoolUsed returns the consumed amount for a pool name.
func (t *AccessToken) PoolUsed(pool string) int64 {
	switch pool {
	case "gigachat":
		return t.GigachatUsed
	case "openai":
		return t.OpenAIUsed
	default:
		return 0
	}
}

// PoolRemaining reports what is left in a pool; unlimited pools report -1.
func (t *AccessToken) PoolRemaining(pool string) int64 {
	limit := t.PoolLimit(pool)
	if limit == LimitUnlimited {
		return LimitUnlimited
	}
	remaining := limit - t.PoolUsed(pool)
	if remaining < 0 {
		return 0
	}
	return remaining
}
