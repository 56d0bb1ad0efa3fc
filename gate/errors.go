package gate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIncorrectPassword is the uniform failure signal for a rejected
	// attempt. Wrong password, tampered envelope, malformed envelope, and
	// nonexistent tier all surface as this error; an external observer
	// cannot tell them apart.
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrExpiredCode indicates the tier's only remaining unlock method is a
	// one-time code past its validity window. Rejected before any key
	// derivation happens.
	ErrExpiredCode = errors.New("one-time code expired")

	// ErrRateLimited is matched by errors.Is against RateLimitedError.
	ErrRateLimited = errors.New("rate limited")

	// ErrAttemptInProgress rejects an attempt while another attempt on the
	// same tier is still deriving. Lockout state is not designed for
	// concurrent mutation.
	ErrAttemptInProgress = errors.New("attempt already in progress")

	// ErrNotUnlocked indicates no live session for the tier: it is locked,
	// or its session has expired and been torn down.
	ErrNotUnlocked = errors.New("tier is not unlocked")
)

// RateLimitedError reports an active cooldown. Distinct from
// ErrIncorrectPassword so callers can show "try again in N seconds".
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: try again in %s", e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) work.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
