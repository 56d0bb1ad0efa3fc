package gate

import "time"

const (
	// maxFailures is the number of consecutive failures before cooldown begins.
	maxFailures = 3
	// cooldownDuration is the flat cooldown window. Deliberately short: the
	// threat model is casual discouragement, not rate-limit enforcement
	// against an attacker who controls the execution environment.
	cooldownDuration = 15 * time.Second
)

// lockoutState tracks consecutive failed attempts for one tier. Process-local
// and never persisted; rebuilding it from scratch on reload is accepted.
type lockoutState struct {
	failures      int
	cooldownUntil time.Time
}

// cooling reports whether a cooldown is active at now. Always evaluated
// against the wall clock at attempt time, never from a previously computed
// flag, so stale state cannot bypass it. An elapsed cooldown resets the
// failure counter.
func (s *lockoutState) cooling(now time.Time) (bool, time.Duration) {
	if s.cooldownUntil.IsZero() {
		return false, 0
	}
	if now.Before(s.cooldownUntil) {
		return true, s.cooldownUntil.Sub(now)
	}
	s.cooldownUntil = time.Time{}
	s.failures = 0
	return false, 0
}

// recordFailure increments the counter and starts the cooldown once
// maxFailures is reached. Returns true if a cooldown was started.
func (s *lockoutState) recordFailure(now time.Time) bool {
	s.failures++
	if s.failures >= maxFailures {
		s.cooldownUntil = now.Add(cooldownDuration)
		return true
	}
	return false
}

// reset clears the state after a successful attempt.
func (s *lockoutState) reset() {
	s.failures = 0
	s.cooldownUntil = time.Time{}
}
