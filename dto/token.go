package dto

import (
	"time"

	"github.com/ghostwriter-labs/gate_api/model"
)

type IssueTokenRequest struct {
	Tier    string `json:"tier" validate:"required,tier"`
	OwnerID string `json:"owner_id,omitempty" validate:"omitempty,max=128"`
}

func (r IssueTokenRequest) Validate() error {
	return GetValidator().Struct(r)
}

type IssueTokenResponse struct {
	Token     string       `json:"token"`
	Tier      string       `json:"tier"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Gigachat  PoolSnapshot `json:"gigachat"`
	OpenAI    PoolSnapshot `json:"openai"`
}

type PoolSnapshot struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

type TokenInfo struct {
	ID          string       `json:"id"`
	Tier        string       `json:"tier"`
	IsActive    bool         `json:"is_active"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	NextRenewal *time.Time   `json:"next_renewal,omitempty"`
	Gigachat    PoolSnapshot `json:"gigachat"`
	OpenAI      PoolSnapshot `json:"openai"`
	TotalUsed   int64        `json:"total_used"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

func NewTokenInfo(t *model.AccessToken) TokenInfo {
	return TokenInfo{
		ID:          t.ID,
		Tier:        t.Tier,
		IsActive:    t.IsActive,
		ExpiresAt:   t.ExpiresAt,
		NextRenewal: t.NextRenewal,
		Gigachat: PoolSnapshot{
			Limit:     t.GigachatLimit,
			Used:      t.GigachatUsed,
			Remaining: t.PoolRemaining("gigachat"),
		},
		OpenAI: PoolSnapshot{
			Limit:     t.OpenAILimit,
			Used:      t.OpenAIUsed,
			Remaining: t.PoolRemaining("openai"),
		},
		TotalUsed:  t.TotalUsed,
		LastUsedAt: t.LastUsedAt,
		CreatedAt:  t.CreatedAt,
	}
}

type TokenListRequest struct {
	Tier     string `json:"tier" validate:"omitempty,tier"`
	Active   *bool  `json:"active,omitempty"`
	Page     int    `json:"page" validate:"omitempty,min=1"`
	PageSize int    `json:"page_size" validate:"omitempty,min=1,max=200"`
}

func (r TokenListRequest) Validate() error {
	return GetValidator().Struct(r)
}

type TokenListResponse struct {
	Tokens []TokenInfo `json:"tokens"`
	Total  int64       `json:"total"`
	Page   int         `json:"page"`
}
