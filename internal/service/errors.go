package service

import (
	"errors"
	"fmt"
	"time"
)

// Authentication failures the handlers map onto HTTP statuses. First-factor
// failures are indistinguishable from the outside; second-factor failures
// carry distinct categories internally but collapse to one external message.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRateLimited          = errors.New("too many login attempts")
	ErrAccessDenied         = errors.New("access denied for this address")
	ErrNotificationFailed   = errors.New("verification code could not be delivered")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrCodeExpired          = errors.New("verification code expired")
	ErrCodeAlreadyUsed      = errors.New("verification code already used")
	ErrSecurityMismatch     = errors.New("verification request origin mismatch")
	ErrInvalidCode          = errors.New("verification code incorrect")
	ErrTooManyCodeAttempts  = errors.New("too many attempts for this code")
	ErrUserUnavailable      = errors.New("user account unavailable")
	ErrInvalidSession       = errors.New("invalid session")
)

// RateLimitError reports how long the caller must wait before another
// attempt. errors.Is(err, ErrRateLimited) matches it.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many login attempts, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
