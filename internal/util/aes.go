package util

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

const (
	// AESKeySize is the AES-256 key size in bytes.
	AESKeySize = 32
	// GCMNonceSize is the GCM nonce size in bytes.
	GCMNonceSize = 12
	// GCMTagSize is the GCM authentication tag size in bytes.
	GCMTagSize = 16
)

// ErrAuthFailed is returned when GCM authentication fails. Wrong key and
// tampered ciphertext are deliberately indistinguishable.
var ErrAuthFailed = errors.New("authentication failed")

// EncryptAESGCM encrypts plaintext with AES-256-GCM under the given key and
// nonce. The caller must supply a fresh random nonce for every call; a
// (key, nonce) pair must never be reused.
func EncryptAESGCM(rawKey, nonce, plainText []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey, nonce)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plainText, nil), nil
}

// DecryptAESGCM decrypts ciphertext||tag produced by EncryptAESGCM. Any bit
// flip in key, nonce, ciphertext, or tag yields ErrAuthFailed, never partial
// plaintext.
func DecryptAESGCM(rawKey, nonce, cipherText []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey, nonce)
	if err != nil {
		return nil, err
	}
	if len(cipherText) < GCMTagSize {
		return nil, ErrAuthFailed
	}
	plainText, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plainText, nil
}

func newGCM(rawKey, nonce []byte) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	if len(nonce) != GCMNonceSize {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(nonce), GCMNonceSize)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// NewNonce generates a fresh random GCM nonce.
func NewNonce() ([]byte, error) {
	return RandomBytes(GCMNonceSize)
}
