package gate

import (
	"log/slog"
	"time"
)

// Option configures a Gate.
type Option func(*Gate)

// WithSessionTTL sets how long a session remains valid after unlock.
func WithSessionTTL(ttl time.Duration) Option {
	return func(g *Gate) { g.sessionTTL = ttl }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the structured logger for gate events. Events never
// include attempted passwords. If not set, a JSON logger writing to stderr
// is used.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}
