package build

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/bundle"
	"github.com/jmcleod/pagegate/envelope"
	"github.com/jmcleod/pagegate/internal/util"
)

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{Sections: []bundle.Section{{
		ID:   "pricing",
		Kind: bundle.KindPricing,
		Pricing: &bundle.PricingTable{
			Tiers: []bundle.PricingTier{{Name: "Essential", Price: "150", Unit: "hr"}},
		},
	}}}
}

func testEncryptor(opts ...Option) *Encryptor {
	return New(append([]Option{WithIterations(util.MinKDFIterations)}, opts...)...)
}

func openTier(t *testing.T, a *artifact.Artifact, tier artifact.Tier, method artifact.Method, password string) *bundle.Bundle {
	t.Helper()
	env, err := envelope.Decode(a.Tiers[tier].Envelopes[method])
	require.NoError(t, err)
	plaintext, err := env.Open(password)
	require.NoError(t, err)
	b, err := bundle.Unmarshal(plaintext)
	require.NoError(t, err)
	return b
}

func TestBuildRoundTrip(t *testing.T) {
	e := testEncryptor()

	res, err := e.Build([]Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "abc123"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Artifact.BuildID)

	got := openTier(t, res.Artifact, "client", artifact.MethodMaster, "abc123")
	assert.Equal(t, testBundle(), got)

	// Wrong password fails authentication, not decode.
	env, err := envelope.Decode(res.Artifact.Tiers["client"].Envelopes[artifact.MethodMaster])
	require.NoError(t, err)
	_, err = env.Open("wrong")
	assert.ErrorIs(t, err, envelope.ErrAuthentication)
}

func TestBuildGeneratesOneTimeCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := testEncryptor(WithClock(func() time.Time { return now }), WithCodeTTL(48*time.Hour))

	res, err := e.Build([]Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "master-pw"},
		{Tier: "client", Method: artifact.MethodOneTime, Bundle: testBundle()},
	})
	require.NoError(t, err)

	issued, ok := res.Codes["client"]
	require.True(t, ok, "generated code must be reported out-of-band")
	assert.Len(t, issued.Code, DefaultCodeLength)
	assert.Equal(t, now.Add(48*time.Hour), issued.ExpiresAt)

	ta := res.Artifact.Tiers["client"]
	require.NotNil(t, ta.CodeExpiresAt)
	assert.Equal(t, issued.ExpiresAt, *ta.CodeExpiresAt)

	// The generated code must never appear in the artifact itself.
	encoded, err := res.Artifact.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), issued.Code)

	// Either credential unlocks the same content.
	assert.Equal(t, testBundle(), openTier(t, res.Artifact, "client", artifact.MethodMaster, "master-pw"))
	assert.Equal(t, testBundle(), openTier(t, res.Artifact, "client", artifact.MethodOneTime, issued.Code))
}

func TestBuildTierIsolation(t *testing.T) {
	e := testEncryptor()

	res, err := e.Build([]Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "client-pw"},
		{Tier: "internal", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "internal-pw"},
	})
	require.NoError(t, err)

	env, err := envelope.Decode(res.Artifact.Tiers["client"].Envelopes[artifact.MethodMaster])
	require.NoError(t, err)
	_, err = env.Open("internal-pw")
	assert.ErrorIs(t, err, envelope.ErrAuthentication,
		"tier B's password must never open tier A's envelope")
}

func TestBuildNonDeterministic(t *testing.T) {
	e := testEncryptor()
	req := []Request{{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "pw"}}

	first, err := e.Build(req)
	require.NoError(t, err)
	second, err := e.Build(req)
	require.NoError(t, err)

	assert.NotEqual(t,
		first.Artifact.Tiers["client"].Envelopes[artifact.MethodMaster],
		second.Artifact.Tiers["client"].Envelopes[artifact.MethodMaster],
		"fresh salt and nonce per build")
}

func TestBuildHardFailures(t *testing.T) {
	e := testEncryptor()

	t.Run("missing master password", func(t *testing.T) {
		_, err := e.Build([]Request{{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle()}})
		assert.ErrorIs(t, err, ErrMissingPassword)
	})

	t.Run("missing bundle", func(t *testing.T) {
		_, err := e.Build([]Request{{Tier: "client", Method: artifact.MethodMaster, Password: "pw"}})
		assert.ErrorIs(t, err, ErrMissingBundle)
	})

	t.Run("no requests", func(t *testing.T) {
		_, err := e.Build(nil)
		assert.Error(t, err)
	})

	t.Run("duplicate tier/method", func(t *testing.T) {
		_, err := e.Build([]Request{
			{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "a"},
			{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "b"},
		})
		assert.ErrorIs(t, err, ErrDuplicateRequest)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := e.Build([]Request{{Tier: "client", Method: "magic", Bundle: testBundle(), Password: "pw"}})
		assert.Error(t, err)
	})
}

func TestRotateCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := testEncryptor(WithClock(func() time.Time { return now }))

	res, err := e.Build([]Request{
		{Tier: "client", Method: artifact.MethodMaster, Bundle: testBundle(), Password: "master-pw"},
		{Tier: "client", Method: artifact.MethodOneTime, Bundle: testBundle()},
	})
	require.NoError(t, err)
	oldCode := res.Codes["client"].Code
	oldEnvelope := res.Artifact.Tiers["client"].Envelopes[artifact.MethodOneTime]

	issued, err := e.RotateCode(res.Artifact, "client", testBundle())
	require.NoError(t, err)
	assert.NotEqual(t, oldCode, issued.Code)
	assert.NotEqual(t, oldEnvelope, res.Artifact.Tiers["client"].Envelopes[artifact.MethodOneTime])

	// New code opens, old code no longer does.
	assert.Equal(t, testBundle(), openTier(t, res.Artifact, "client", artifact.MethodOneTime, issued.Code))
	env, err := envelope.Decode(res.Artifact.Tiers["client"].Envelopes[artifact.MethodOneTime])
	require.NoError(t, err)
	_, err = env.Open(oldCode)
	assert.ErrorIs(t, err, envelope.ErrAuthentication)

	// Master envelope untouched.
	assert.Equal(t, testBundle(), openTier(t, res.Artifact, "client", artifact.MethodMaster, "master-pw"))

	t.Run("unknown tier", func(t *testing.T) {
		_, err := e.RotateCode(res.Artifact, "nope", testBundle())
		assert.ErrorIs(t, err, artifact.ErrTierNotFound)
	})

	t.Run("missing bundle", func(t *testing.T) {
		_, err := e.RotateCode(res.Artifact, "client", nil)
		assert.ErrorIs(t, err, ErrMissingBundle)
	})
}
