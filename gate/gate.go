// Package gate implements the runtime side of the encrypted content gate: a
// per-tier state machine (Locked, Cooling, Unlocked) that accepts password
// attempts, enforces a flat cooldown after repeated failures, decrypts the
// tier's envelope on success, and caches the decrypted bundle in protected
// memory until logout or session expiry.
package gate

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/bundle"
	"github.com/jmcleod/pagegate/envelope"
	"github.com/jmcleod/pagegate/internal/util"
)

// State is the gate's observable state for one tier.
type State int

const (
	StateLocked State = iota
	StateCooling
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateCooling:
		return "cooling"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Gate owns the lockout counters, sessions, and decrypted-content cache for
// one loaded artifact. One instance per page load; nothing is shared across
// instances or persisted.
type Gate struct {
	mu         sync.Mutex
	art        *artifact.Artifact
	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	tiers      map[artifact.Tier]*tierState
}

type tierState struct {
	lockout  lockoutState
	session  *Session
	content  *memguard.Enclave
	inFlight bool
}

// New creates a gate over a validated artifact.
func New(a *artifact.Artifact, opts ...Option) (*Gate, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	g := &Gate{
		art:        a,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
		tiers:      make(map[artifact.Tier]*tierState),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return g, nil
}

// tierStateLocked returns the tier's state, creating it on first use. State
// is created even for tiers absent from the artifact so that attempts
// against nonexistent tiers behave exactly like wrong passwords, cooldown
// included.
func (g *Gate) tierStateLocked(tier artifact.Tier) *tierState {
	ts, ok := g.tiers[tier]
	if !ok {
		ts = &tierState{}
		g.tiers[tier] = ts
	}
	return ts
}

type candidate struct {
	method artifact.Method
	env    *envelope.Envelope
}

// candidatesLocked decodes the tier's envelopes in method order (master
// first). A one-time envelope past its expiry is skipped before any key
// derivation; expiredOnly reports that expiry was the sole reason nothing
// is left to try.
func (g *Gate) candidatesLocked(tier artifact.Tier, now time.Time) (cands []candidate, expiredOnly bool) {
	ta, err := g.art.TierFor(tier)
	if err != nil {
		return nil, false
	}

	sawExpired := false
	for _, method := range artifact.MethodOrder {
		encoded, ok := ta.Envelopes[method]
		if !ok {
			continue
		}
		if method == artifact.MethodOneTime && ta.CodeExpiresAt != nil && now.After(*ta.CodeExpiresAt) {
			sawExpired = true
			continue
		}
		env, err := envelope.Decode(encoded)
		if err != nil {
			// Corrupted artifact. Logged for diagnostics; the caller still
			// sees the uniform failure signal.
			g.logger.Error("malformed envelope", "tier", tier, "method", method, "err", err)
			continue
		}
		cands = append(cands, candidate{method: method, env: env})
	}
	return cands, len(cands) == 0 && sawExpired
}

// Attempt checks a password against the tier's configured unlock methods.
// On success it opens a session and returns the decrypted bundle. Failures
// return ErrIncorrectPassword, RateLimitedError during cooldown, or
// ErrExpiredCode when the tier's only live method has expired.
//
// Key derivation is potentially slow (hundreds of thousands of hash
// iterations) and runs off the calling goroutine; cancelling ctx abandons
// the attempt with no state committed. Overlapping attempts on one tier are
// rejected with ErrAttemptInProgress.
func (g *Gate) Attempt(ctx context.Context, tier artifact.Tier, password string) (*bundle.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	ts := g.tierStateLocked(tier)
	if ts.inFlight {
		g.mu.Unlock()
		return nil, ErrAttemptInProgress
	}

	now := g.now()
	if cooling, remaining := ts.lockout.cooling(now); cooling {
		g.mu.Unlock()
		return nil, &RateLimitedError{RetryAfter: remaining}
	}

	cands, expiredOnly := g.candidatesLocked(tier, now)
	if len(cands) == 0 {
		if expiredOnly {
			g.mu.Unlock()
			g.logger.Info("attempt rejected, one-time code expired", "tier", tier)
			return nil, ErrExpiredCode
		}
		// Nonexistent tier or fully corrupted envelopes: indistinguishable
		// from a wrong password, and it still counts toward the cooldown.
		if ts.lockout.recordFailure(now) {
			g.logger.Info("cooldown started", "tier", tier)
		}
		g.mu.Unlock()
		return nil, ErrIncorrectPassword
	}

	ts.inFlight = true
	g.mu.Unlock()

	type outcome struct {
		method    artifact.Method
		plaintext []byte
		ok        bool
	}
	ch := make(chan outcome, 1)
	go func() {
		for _, c := range cands {
			plaintext, err := c.env.Open(password)
			if err == nil {
				ch <- outcome{method: c.method, plaintext: plaintext, ok: true}
				return
			}
		}
		ch <- outcome{}
	}()

	select {
	case <-ctx.Done():
		// Abandoned mid-derivation: release the in-flight guard and commit
		// nothing. The worker's eventual result is discarded.
		g.mu.Lock()
		ts.inFlight = false
		g.mu.Unlock()
		return nil, ctx.Err()

	case res := <-ch:
		g.mu.Lock()
		defer g.mu.Unlock()
		ts.inFlight = false
		now = g.now()

		if !res.ok {
			if ts.lockout.recordFailure(now) {
				g.logger.Info("cooldown started", "tier", tier, "failures", ts.lockout.failures)
			}
			return nil, ErrIncorrectPassword
		}

		b, err := bundle.Unmarshal(res.plaintext)
		if err != nil {
			// Authenticated but undecodable content means a corrupted build
			// artifact. Fail exactly like a wrong password.
			util.WipeBytes(res.plaintext)
			g.logger.Error("decrypted payload is not a valid bundle", "tier", tier, "err", err)
			if ts.lockout.recordFailure(now) {
				g.logger.Info("cooldown started", "tier", tier)
			}
			return nil, ErrIncorrectPassword
		}

		ts.lockout.reset()
		ts.session = &Session{
			Tier:       tier,
			Method:     res.method,
			UnlockedAt: now,
			ExpiresAt:  now.Add(g.sessionTTL),
		}
		// NewEnclave wipes res.plaintext after sealing it.
		ts.content = memguard.NewEnclave(res.plaintext)
		g.logger.Info("tier unlocked", "tier", tier, "method", res.method)
		return b, nil
	}
}

// Content returns the decrypted bundle for an unlocked tier. The session
// expiry is re-checked on every access; an expired session is torn down
// lazily here, wiping the cached bundle.
func (g *Gate) Content(tier artifact.Tier) (*bundle.Bundle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tiers[tier]
	if !ok || ts.session == nil {
		return nil, ErrNotUnlocked
	}
	if ts.session.expired(g.now()) {
		g.clearLocked(ts)
		g.logger.Info("session expired", "tier", tier)
		return nil, ErrNotUnlocked
	}

	buf, err := ts.content.Open()
	if err != nil {
		g.clearLocked(ts)
		return nil, ErrNotUnlocked
	}
	defer buf.Destroy()
	return bundle.Unmarshal(buf.Bytes())
}

// Session returns a copy of the tier's live session, applying the same lazy
// expiry check as Content.
func (g *Gate) Session(tier artifact.Tier) (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tiers[tier]
	if !ok || ts.session == nil {
		return Session{}, false
	}
	if ts.session.expired(g.now()) {
		g.clearLocked(ts)
		g.logger.Info("session expired", "tier", tier)
		return Session{}, false
	}
	return *ts.session, true
}

// State reports the tier's current state, re-validating cooldown and session
// expiry against the wall clock.
func (g *Gate) State(tier artifact.Tier) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tiers[tier]
	if !ok {
		return StateLocked
	}
	now := g.now()
	if ts.session != nil {
		if !ts.session.expired(now) {
			return StateUnlocked
		}
		g.clearLocked(ts)
		g.logger.Info("session expired", "tier", tier)
	}
	if cooling, _ := ts.lockout.cooling(now); cooling {
		return StateCooling
	}
	return StateLocked
}

// Logout eagerly discards the tier's decrypted content and session,
// returning it to Locked.
func (g *Gate) Logout(tier artifact.Tier) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tiers[tier]
	if !ok {
		return
	}
	g.clearLocked(ts)
	g.logger.Info("logged out", "tier", tier)
}

func (g *Gate) clearLocked(ts *tierState) {
	ts.session = nil
	ts.content = nil
}
