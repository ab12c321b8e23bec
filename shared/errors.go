package shared

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Machine-readable denial kinds. The presentation layer branches on these,
// so every denial path must carry one.
const (
	KindNotFound            = "not_found"
	KindInactive            = "inactive"
	KindQuotaExceeded       = "quota_exceeded"
	KindRateLimited         = "rate_limited"
	KindBlocked             = "blocked"
	KindDuplicateFreeGrant  = "duplicate_free_grant"
	KindSubstrateUnavailable = "substrate_unavailable"
	KindBadRequest          = "bad_request"
	KindUnauthorized        = "unauthorized"
	KindForbidden           = "forbidden"
	KindInternal            = "internal"
)

type AppError struct {
	Kind       string      `json:"kind"`
	StatusCode int         `json:"-"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Err        error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: message, Err: err}
}

func NewInactiveError(message string) *AppError {
	return &AppError{Kind: KindInactive, StatusCode: http.StatusUnauthorized, Message: message}
}

// NewQuotaExceededError is pool-specific so callers can branch per pool.
func NewQuotaExceededError(pool string, remaining int64) *AppError {
	return &AppError{
		Kind:       KindQuotaExceeded,
		StatusCode: http.StatusPaymentRequired,
		Message:    fmt.Sprintf("Generation limit exceeded for %s", pool),
		Data:       map[string]interface{}{"pool": pool, "remaining": remaining},
	}
}

func NewRateLimitedError(retryAfter time.Duration) *AppError {
	return &AppError{
		Kind:       KindRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    "Too many requests. Please try again later.",
		Data:       map[string]interface{}{"retry_after": int(retryAfter.Seconds())},
	}
}

func NewBlockedError(reason string, expiresAt *time.Time) *AppError {
	data := map[string]interface{}{"reason": reason}
	if expiresAt != nil {
		data["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	return &AppError{
		Kind:       KindBlocked,
		StatusCode: http.StatusForbidden,
		Message:    "Access temporarily blocked due to suspicious activity",
		Data:       data,
	}
}

func NewDuplicateFreeGrantError(fingerprint string) *AppError {
	return &AppError{
		Kind:       KindDuplicateFreeGrant,
		StatusCode: http.StatusConflict,
		Message:    "An active free token already exists for this user",
		Data:       map[string]interface{}{"fingerprint": fingerprint},
	}
}

func NewSubstrateUnavailableError(err error) *AppError {
	return &AppError{
		Kind:       KindSubstrateUnavailable,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "Backing store unavailable",
		Err:        err,
	}
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{Kind: KindBadRequest, StatusCode: http.StatusBadRequest, Message: message, Err: err}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, StatusCode: http.StatusUnauthorized, Message: message}
}

func NewForbiddenError(err error, message string) *AppError {
	return &AppError{Kind: KindForbidden, StatusCode: http.StatusForbidden, Message: message, Err: err}
}

func NewInternalError(err error, message string) *AppError {
	return &AppError{Kind: KindInternal, StatusCode: http.StatusInternalServerError, Message: message, Err: err}
}
