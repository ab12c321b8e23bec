package dto

import "time"

// RateLimitInfo describes the outcome of a fixed-window check.
type RateLimitInfo struct {
	Allowed    bool       `json:"allowed"`
	Remaining  int        `json:"remaining"`
	ResetTime  *time.Time `json:"reset_time,omitempty"`
	RetryAfter int        `json:"retry_after,omitempty"`
}

// AccessVerdict is the gateway's per-request decision, handed to the
// request-handling layer on success.
type AccessVerdict struct {
	Allowed   bool      `json:"allowed"`
	Token     TokenInfo `json:"token"`
	Pool      string    `json:"pool"`
	Remaining int64     `json:"remaining"`
}

type ConsumeRequest struct {
	Pool   string `json:"pool" validate:"required,oneof=gigachat openai"`
	Amount int64  `json:"amount" validate:"omitempty,min=1,max=100000"`
}

func (r ConsumeRequest) Validate() error {
	return GetValidator().Struct(r)
}

type BlockRequest struct {
	Identity   string `json:"identity" validate:"required,max=255"`
	Reason     string `json:"reason" validate:"required,max=255"`
	TTLSeconds *int   `json:"ttl_seconds,omitempty" validate:"omitempty,min=1"`
}

func (r BlockRequest) Validate() error {
	return GetValidator().Struct(r)
}

type BlockInfoResponse struct {
	Identity  string     `json:"identity"`
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type SchedulerJobStatus struct {
	ID           string     `json:"id"`
	Running      bool       `json:"running"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastAffected int64      `json:"last_affected"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

type SchedulerStatusResponse struct {
	Running bool                 `json:"running"`
	Jobs    []SchedulerJobStatus `json:"jobs"`
}

type CleanupReport struct {
	DryRun  bool  `json:"dry_run"`
	Matched int64 `json:"matched"`
	Deleted int64 `json:"deleted"`
}
