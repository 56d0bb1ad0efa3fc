// Package envelope implements the versioned container for one encrypted
// content blob: the randomness and KDF metadata needed to decrypt it, plus
// a transportable string encoding suitable for embedding in a published page.
package envelope

import (
	"errors"
	"fmt"

	"github.com/jmcleod/pagegate/internal/util"
)

// SchemaVersion is the current envelope format version. Unknown versions are
// rejected at decode time rather than misparsed.
const SchemaVersion = 1

const (
	// SaltSize is the KDF salt length in bytes.
	SaltSize = util.KDFSaltLength
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = util.GCMNonceSize

	// header: version (1) || iterations (4, big-endian) || salt || nonce
	headerSize = 1 + 4 + SaltSize + NonceSize
	// minimum payload is an empty plaintext, i.e. just the GCM tag
	minEncodedSize = headerSize + util.GCMTagSize

	maxIterations = 10_000_000
)

var (
	// ErrFormat indicates a malformed or unsupported envelope encoding.
	// Distinct from ErrAuthentication: a well-formed envelope that fails to
	// decrypt is a credential problem, not a format problem.
	ErrFormat = errors.New("malformed envelope")

	// ErrAuthentication indicates decryption failed. Wrong password and
	// tampered ciphertext are indistinguishable by design.
	ErrAuthentication = errors.New("envelope authentication failed")
)

// Envelope is a sealed record containing AES-256-GCM encrypted content and
// the per-envelope KDF parameters. Salt and nonce are freshly random per
// seal; they are never reused across builds or across tiers.
type Envelope struct {
	Ver        int
	Iterations int
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte // includes the GCM tag
}

// Seal derives a key from the password with fresh random salt, encrypts
// plaintext under a fresh random nonce, and returns the envelope. The
// derived key is wiped before returning.
func Seal(password string, plaintext []byte, iterations int) (*Envelope, error) {
	salt, err := util.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	nonce, err := util.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	key, err := util.DeriveKey(password, salt, iterations)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	defer util.WipeBytes(key)

	ciphertext, err := util.EncryptAESGCM(key, nonce, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting content: %w", err)
	}

	return &Envelope{
		Ver:        SchemaVersion,
		Iterations: iterations,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open derives a key from the password using the envelope's own salt and
// iteration count, then decrypts. Returns ErrAuthentication on wrong
// password or tampered ciphertext.
func (e *Envelope) Open(password string) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	key, err := util.DeriveKey(password, e.Salt, e.Iterations)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	defer util.WipeBytes(key)

	plaintext, err := util.DecryptAESGCM(key, e.Nonce, e.Ciphertext)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func (e *Envelope) validate() error {
	if e.Ver != SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrFormat, e.Ver)
	}
	if e.Iterations < util.MinKDFIterations || e.Iterations > maxIterations {
		return fmt.Errorf("%w: implausible iteration count %d", ErrFormat, e.Iterations)
	}
	if len(e.Salt) != SaltSize {
		return fmt.Errorf("%w: salt length %d", ErrFormat, len(e.Salt))
	}
	if len(e.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce length %d", ErrFormat, len(e.Nonce))
	}
	if len(e.Ciphertext) < util.GCMTagSize {
		return fmt.Errorf("%w: ciphertext shorter than authentication tag", ErrFormat)
	}
	return nil
}
