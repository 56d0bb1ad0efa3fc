package gate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/build"
	"github.com/jmcleod/pagegate/bundle"
	"github.com/jmcleod/pagegate/internal/util"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{Sections: []bundle.Section{{
		ID:   "pricing",
		Kind: bundle.KindPricing,
		Pricing: &bundle.PricingTable{
			Tiers: []bundle.PricingTier{{Name: "Essential", Price: "150", Unit: "hr"}},
		},
	}}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildTestArtifact seals testBundle for one tier under "master-pw" and a
// one-time code, both with fast test iterations.
func buildTestArtifact(t *testing.T, clock *fakeClock) (*artifact.Artifact, build.IssuedCode) {
	t.Helper()
	e := build.New(
		build.WithIterations(util.MinKDFIterations),
		build.WithClock(clock.Now),
		build.WithCodeTTL(48*time.Hour),
	)
	res, err := e.Build([]build.Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "master-pw"},
		{Tier: "client", Method: artifact.MethodOneTime, Bundle: testBundle()},
	})
	require.NoError(t, err)
	return res.Artifact, res.Codes["client"]
}

func newTestGate(t *testing.T, a *artifact.Artifact, clock *fakeClock, opts ...Option) *Gate {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithLogger(quietLogger())}, opts...)
	g, err := New(a, opts...)
	require.NoError(t, err)
	return g
}

func TestAttemptUnlocksWithMasterPassword(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)

	b, err := g.Attempt(context.Background(), "client", "master-pw")
	require.NoError(t, err)
	assert.Equal(t, testBundle(), b)
	assert.Equal(t, StateUnlocked, g.State("client"))

	sess, ok := g.Session("client")
	require.True(t, ok)
	assert.Equal(t, artifact.Tier("client"), sess.Tier)
	assert.Equal(t, artifact.MethodMaster, sess.Method)
	assert.Equal(t, clock.Now(), sess.UnlockedAt)
	assert.Equal(t, clock.Now().Add(DefaultSessionTTL), sess.ExpiresAt)

	got, err := g.Content("client")
	require.NoError(t, err)
	assert.Equal(t, testBundle(), got)
}

func TestAttemptUnlocksWithOneTimeCode(t *testing.T) {
	clock := newFakeClock()
	a, issued := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)

	b, err := g.Attempt(context.Background(), "client", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, testBundle(), b)

	sess, ok := g.Session("client")
	require.True(t, ok)
	assert.Equal(t, artifact.MethodOneTime, sess.Method)
}

func TestAttemptWrongPassword(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)

	_, err := g.Attempt(context.Background(), "client", "nope")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	assert.Equal(t, StateLocked, g.State("client"))

	_, err = g.Content("client")
	assert.ErrorIs(t, err, ErrNotUnlocked)
}

func TestLockoutAfterThreeFailures(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Attempt(ctx, "client", "wrong")
		assert.ErrorIs(t, err, ErrIncorrectPassword, "attempt %d", i+1)
	}
	assert.Equal(t, StateCooling, g.State("client"))

	// Even the correct password is rejected during cooldown, without the
	// cipher being invoked.
	clock.Advance(5 * time.Second)
	_, err := g.Attempt(ctx, "client", "master-pw")
	require.ErrorIs(t, err, ErrRateLimited)
	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 10*time.Second, rle.RetryAfter)

	// At the deadline the gate reverts to Locked and accepts the attempt.
	clock.Advance(10 * time.Second)
	b, err := g.Attempt(ctx, "client", "master-pw")
	require.NoError(t, err)
	assert.Equal(t, testBundle(), b)
}

func TestCooldownExpiryResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = g.Attempt(ctx, "client", "wrong")
	}
	clock.Advance(16 * time.Second)

	// Fresh round: two more failures must not trigger cooldown again.
	_, err := g.Attempt(ctx, "client", "wrong")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	_, err = g.Attempt(ctx, "client", "wrong")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	assert.Equal(t, StateLocked, g.State("client"))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)
	ctx := context.Background()

	_, _ = g.Attempt(ctx, "client", "wrong")
	_, _ = g.Attempt(ctx, "client", "wrong")

	_, err := g.Attempt(ctx, "client", "master-pw")
	require.NoError(t, err)
	g.Logout("client")

	// Two more failures would have triggered cooldown had the counter not
	// been reset by the success.
	_, _ = g.Attempt(ctx, "client", "wrong")
	_, err = g.Attempt(ctx, "client", "wrong")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	assert.Equal(t, StateLocked, g.State("client"))
}

func TestOneTimeCodeExpiry(t *testing.T) {
	clock := newFakeClock()
	a, issued := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)
	ctx := context.Background()

	t.Run("accepted one second before expiry", func(t *testing.T) {
		clock.Advance(48*time.Hour - time.Second)
		_, err := g.Attempt(ctx, "client", issued.Code)
		require.NoError(t, err)
		g.Logout("client")
	})

	t.Run("rejected after expiry regardless of correctness", func(t *testing.T) {
		clock.Advance(2 * time.Second)
		_, err := g.Attempt(ctx, "client", issued.Code)
		assert.ErrorIs(t, err, ErrIncorrectPassword,
			"with a live master method the failure signal stays uniform")
	})

	t.Run("master password still works after code expiry", func(t *testing.T) {
		b, err := g.Attempt(ctx, "client", "master-pw")
		require.NoError(t, err)
		assert.Equal(t, testBundle(), b)
	})
}

func TestExpiredCodeOnOTPOnlyTier(t *testing.T) {
	clock := newFakeClock()
	e := build.New(
		build.WithIterations(util.MinKDFIterations),
		build.WithClock(clock.Now),
		build.WithCodeTTL(time.Hour),
	)
	res, err := e.Build([]build.Request{
		{Tier: "client", Method: artifact.MethodOneTime, Bundle: testBundle()},
	})
	require.NoError(t, err)
	g := newTestGate(t, res.Artifact, clock)
	ctx := context.Background()

	clock.Advance(time.Hour + time.Second)
	_, err = g.Attempt(ctx, "client", res.Codes["client"].Code)
	assert.ErrorIs(t, err, ErrExpiredCode)

	// Expiry rejection happens before derivation and does not feed the
	// lockout counter.
	for i := 0; i < 5; i++ {
		_, _ = g.Attempt(ctx, "client", "anything")
	}
	assert.Equal(t, StateLocked, g.State("client"))
}

func TestSessionExpiry(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock, WithSessionTTL(10*time.Minute))
	ctx := context.Background()

	_, err := g.Attempt(ctx, "client", "master-pw")
	require.NoError(t, err)

	// Still accessible right up to the deadline.
	clock.Advance(10 * time.Minute)
	_, err = g.Content("client")
	require.NoError(t, err)

	// First interaction past the deadline tears the session down.
	clock.Advance(time.Second)
	_, err = g.Content("client")
	assert.ErrorIs(t, err, ErrNotUnlocked)
	assert.Equal(t, StateLocked, g.State("client"))

	_, ok := g.Session("client")
	assert.False(t, ok)

	// Re-entry requires a fresh attempt.
	_, err = g.Attempt(ctx, "client", "master-pw")
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)

	_, err := g.Attempt(context.Background(), "client", "master-pw")
	require.NoError(t, err)

	g.Logout("client")
	assert.Equal(t, StateLocked, g.State("client"))
	_, err = g.Content("client")
	assert.ErrorIs(t, err, ErrNotUnlocked)
}

func TestUnknownTierIndistinguishableFromWrongPassword(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Attempt(ctx, "ghost", "whatever")
		assert.ErrorIs(t, err, ErrIncorrectPassword)
	}
	// Nonexistent tiers cool down too.
	assert.Equal(t, StateCooling, g.State("ghost"))
}

func TestAttemptCancelledContext(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Attempt(ctx, "client", "master-pw")
	assert.ErrorIs(t, err, context.Canceled)

	// No state committed; a fresh attempt still works.
	assert.Equal(t, StateLocked, g.State("client"))
	_, err = g.Attempt(context.Background(), "client", "master-pw")
	require.NoError(t, err)
}

func TestAttemptAbandonedMidDerivation(t *testing.T) {
	clock := newFakeClock()
	// Production-grade iteration count so derivation takes long enough for
	// the cancellation to land first.
	e := build.New(build.WithIterations(400_000), build.WithClock(clock.Now))
	res, err := e.Build([]build.Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "master-pw"},
	})
	require.NoError(t, err)
	g := newTestGate(t, res.Artifact, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Attempt(ctx, "client", "wrong")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	// A second attempt while the first is still deriving is rejected.
	_, err = g.Attempt(context.Background(), "client", "overlap")
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	cancel()

	err = <-done
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned attempt committed nothing: not even a failure.
	assert.Equal(t, StateLocked, g.State("client"))
}

func TestCorruptedEnvelopeAfterLoad(t *testing.T) {
	clock := newFakeClock()
	a, _ := buildTestArtifact(t, clock)
	g := newTestGate(t, a, clock)

	// Simulate bit rot in the served artifact after the gate loaded it.
	a.Tiers["client"].Envelopes[artifact.MethodMaster] = "garbage"
	a.Tiers["client"].Envelopes[artifact.MethodOneTime] = "garbage"

	_, err := g.Attempt(context.Background(), "client", "master-pw")
	assert.ErrorIs(t, err, ErrIncorrectPassword,
		"corrupted artifact must look like a wrong password")
}

func TestNewRejectsInvalidArtifact(t *testing.T) {
	_, err := New(&artifact.Artifact{}, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, artifact.ErrInvalid)
}

// The end-to-end scenario from the build tool's documentation: a pricing
// bundle sealed under "abc123" at 100k iterations round-trips, and a wrong
// password fails authentication.
func TestScenarioRoundTrip(t *testing.T) {
	clock := newFakeClock()
	b := &bundle.Bundle{Sections: []bundle.Section{{
		ID:   "rates",
		Kind: bundle.KindRaw,
		Raw:  json.RawMessage(`{"rate":150}`),
	}}}

	e := build.New(build.WithIterations(100_000), build.WithClock(clock.Now))
	res, err := e.Build([]build.Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: b, Password: "abc123"},
	})
	require.NoError(t, err)

	// Through the full pipeline: encode, decode, unlock.
	data, err := res.Artifact.Encode()
	require.NoError(t, err)
	loaded, err := artifact.Decode(data)
	require.NoError(t, err)

	g := newTestGate(t, loaded, clock)
	got, err := g.Attempt(context.Background(), "client", "abc123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate":150}`, string(got.Sections[0].Raw))

	g.Logout("client")
	_, err = g.Attempt(context.Background(), "client", "wrong")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
}
