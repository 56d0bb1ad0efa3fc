package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/pagegate/internal/util"
)

// testIterations keeps KDF work low in tests; production defaults are much
// higher and recorded per envelope.
const testIterations = util.MinKDFIterations

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"rate":150}`)

	env, err := Seal("abc123", plaintext, testIterations)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, env.Ver)
	assert.Equal(t, testIterations, env.Iterations)
	assert.Len(t, env.Salt, SaltSize)
	assert.Len(t, env.Nonce, NonceSize)

	got, err := env.Open("abc123")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenWrongPassword(t *testing.T) {
	env, err := Seal("abc123", []byte(`{"rate":150}`), testIterations)
	require.NoError(t, err)

	_, err = env.Open("wrong")
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestSealFreshRandomness(t *testing.T) {
	plaintext := []byte("same content")

	a, err := Seal("pw", plaintext, testIterations)
	require.NoError(t, err)
	b, err := Seal("pw", plaintext, testIterations)
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt, "salt must be fresh per seal")
	assert.NotEqual(t, a.Nonce, b.Nonce, "nonce must be fresh per seal")
	assert.NotEqual(t, a.Encode(), b.Encode(), "two builds of the same input must differ")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := Seal("pw", []byte("payload"), testIterations)
	require.NoError(t, err)

	decoded, err := Decode(env.Encode())
	require.NoError(t, err)
	assert.Equal(t, env.Ver, decoded.Ver)
	assert.Equal(t, env.Iterations, decoded.Iterations)
	assert.Equal(t, env.Salt, decoded.Salt)
	assert.Equal(t, env.Nonce, decoded.Nonce)
	assert.Equal(t, env.Ciphertext, decoded.Ciphertext)

	got, err := decoded.Open("pw")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestDecodeMalformed(t *testing.T) {
	t.Run("not base64", func(t *testing.T) {
		_, err := Decode("%%% not base64 %%%")
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := Decode(util.Base64Encode([]byte{1, 2, 3}))
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("unknown schema version", func(t *testing.T) {
		env, err := Seal("pw", []byte("payload"), testIterations)
		require.NoError(t, err)

		raw, err := util.Base64Decode(env.Encode())
		require.NoError(t, err)
		raw[0] = 99

		_, err = Decode(util.Base64Encode(raw))
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("implausible iteration count", func(t *testing.T) {
		env, err := Seal("pw", []byte("payload"), testIterations)
		require.NoError(t, err)

		raw, err := util.Base64Decode(env.Encode())
		require.NoError(t, err)
		// zero out the iteration field
		raw[1], raw[2], raw[3], raw[4] = 0, 0, 0, 0

		_, err = Decode(util.Base64Encode(raw))
		assert.ErrorIs(t, err, ErrFormat)
	})
}

func TestTamperedCiphertextFailsAuthentication(t *testing.T) {
	env, err := Seal("pw", []byte("payload"), testIterations)
	require.NoError(t, err)
	encoded := env.Encode()

	raw, err := util.Base64Decode(encoded)
	require.NoError(t, err)

	// Flip one bit in every ciphertext+tag byte in turn; each must fail
	// authentication, never yield wrong plaintext.
	for i := headerSize; i < len(raw); i++ {
		tampered := util.CopyBytes(raw)
		tampered[i] ^= 0x01

		decoded, err := Decode(util.Base64Encode(tampered))
		require.NoError(t, err)

		_, err = decoded.Open("pw")
		require.ErrorIs(t, err, ErrAuthentication, "bit flip at byte %d", i)
	}
}

func TestLegacyIterationCountsStillOpen(t *testing.T) {
	// Two artifact generations exist in the wild (100k and 400k). The count
	// is carried by the envelope, so both remain decryptable after defaults
	// change.
	for _, iters := range []int{100_000, 400_000} {
		env, err := Seal("pw", []byte("legacy"), iters)
		require.NoError(t, err)

		decoded, err := Decode(env.Encode())
		require.NoError(t, err)
		assert.Equal(t, iters, decoded.Iterations)

		got, err := decoded.Open("pw")
		require.NoError(t, err)
		assert.Equal(t, []byte("legacy"), got)
	}
}
