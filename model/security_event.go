package model

import (
	"encoding/json"
	"time"
)

const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// SecurityEvent is an append-only audit record. Rows are kept for a bounded
// tail and drained to object storage by the scheduler's archive job.
type SecurityEvent struct {
	ID        string          `json:"id" gorm:"primaryKey;type:text;not null"`
	EventType string          `json:"event_type" gorm:"not null;index;size:50"`
	Identity  string          `json:"identity" gorm:"not null;index;size:255"`
	Severity  string          `json:"severity" gorm:"not null;size:10"`
	Details   json.RawMessage `json:"details" gorm:"type:jsonb"`
	Archived  bool            `json:"archived" gorm:"default:false;not null;index"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null;index"`
}

// BlockEntry lives in the cache under blocked:<identity>; absence means
// "not blocked".
type BlockEntry struct {
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
