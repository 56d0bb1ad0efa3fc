package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// allowedCodeChars excludes ambiguous characters (0/O, 1/l/I) so generated
// one-time codes survive being read aloud or copied by hand.
var allowedCodeChars = []rune("abcdefghjkmnpqrstuvwxyz23456789")

// RandomCode generates a human-readable random code of n characters.
func RandomCode(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		idx, err := RandomIntn(len(allowedCodeChars))
		if err != nil {
			return "", fmt.Errorf("generating random code index: %w", err)
		}
		sb.WriteRune(allowedCodeChars[idx])
	}
	return sb.String(), nil
}

// RandomIntn returns a uniform random int in [0, max).
func RandomIntn(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return int(n.Int64()), nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
