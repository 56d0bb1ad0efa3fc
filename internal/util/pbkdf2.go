package util

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFKeyLength is the derived key length in bytes (AES-256).
	KDFKeyLength = 32
	// KDFSaltLength is the required salt length in bytes.
	KDFSaltLength = 16
	// DefaultKDFIterations is the PBKDF2 iteration count for new envelopes.
	// Older artifacts were produced with 100_000 or 400_000 iterations;
	// the count is recorded per envelope, so those still decrypt.
	DefaultKDFIterations = 600_000
	// MinKDFIterations rejects iteration counts too low to be plausible,
	// which would usually indicate a corrupted envelope header.
	MinKDFIterations = 1000
)

// DeriveKey derives a 32-byte key from a password using PBKDF2-HMAC-SHA256.
// The password is NFKD-normalized first so that visually identical Unicode
// input derives the same key regardless of how the platform composed it.
func DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if len(salt) != KDFSaltLength {
		return nil, fmt.Errorf("invalid salt length: got %d, want %d", len(salt), KDFSaltLength)
	}
	if iterations < MinKDFIterations {
		return nil, fmt.Errorf("iteration count %d below minimum %d", iterations, MinKDFIterations)
	}
	normalized := []byte(Normalize(password))
	defer WipeBytes(normalized)
	return pbkdf2.Key(normalized, salt, iterations, KDFKeyLength, sha256.New), nil
}

// CompareKey derives a key from the password and compares it to expectedKey
// in constant time.
func CompareKey(password string, salt []byte, iterations int, expectedKey []byte) (bool, error) {
	key, err := DeriveKey(password, salt, iterations)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

// NewSalt generates a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(KDFSaltLength)
}
