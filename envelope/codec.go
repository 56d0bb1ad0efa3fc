package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/jmcleod/pagegate/internal/util"
)

// Encode serializes the envelope to an opaque base64 string:
//
//	version (1) || iterations (4, big-endian) || salt (16) || nonce (12) || ciphertext+tag
//
// This string is the only representation of protected content that may
// appear in a published artifact.
func (e *Envelope) Encode() string {
	raw := make([]byte, 0, headerSize+len(e.Ciphertext))
	raw = append(raw, byte(e.Ver))
	raw = binary.BigEndian.AppendUint32(raw, uint32(e.Iterations))
	raw = append(raw, e.Salt...)
	raw = append(raw, e.Nonce...)
	raw = append(raw, e.Ciphertext...)
	return util.Base64Encode(raw)
}

// Decode parses an encoded envelope, validating structure before any
// decryption is attempted. Malformed input is ErrFormat.
func Decode(s string) (*Envelope, error) {
	raw, err := util.Base64Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(raw) < minEncodedSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrFormat, len(raw), minEncodedSize)
	}

	e := &Envelope{
		Ver:        int(raw[0]),
		Iterations: int(binary.BigEndian.Uint32(raw[1:5])),
		Salt:       util.CopyBytes(raw[5 : 5+SaltSize]),
		Nonce:      util.CopyBytes(raw[5+SaltSize : headerSize]),
		Ciphertext: util.CopyBytes(raw[headerSize:]),
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}
