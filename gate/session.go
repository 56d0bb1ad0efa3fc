package gate

import (
	"time"

	"github.com/jmcleod/pagegate/artifact"
)

// DefaultSessionTTL is how long an unlocked tier stays accessible without an
// explicit logout.
const DefaultSessionTTL = 30 * time.Minute

// Session records one successful unlock. Volatile: it lives only as long as
// the gate instance and is destroyed on logout (eager) or on the first
// access after expiry (lazy).
type Session struct {
	Tier       artifact.Tier
	Method     artifact.Method
	UnlockedAt time.Time
	ExpiresAt  time.Time
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
