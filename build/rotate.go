package build

import (
	"fmt"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/bundle"
	"github.com/jmcleod/pagegate/internal/util"
)

// RotateCode replaces a tier's one-time envelope with one sealed under a
// freshly generated code and stamps a new expiry. The master envelope is
// untouched, so the long-lived password keeps working while the old code
// dies with its envelope. Returns the new code out-of-band.
func (e *Encryptor) RotateCode(a *artifact.Artifact, tier artifact.Tier, b *bundle.Bundle) (IssuedCode, error) {
	if b == nil {
		return IssuedCode{}, fmt.Errorf("%w: tier %q", ErrMissingBundle, tier)
	}
	ta, err := a.TierFor(tier)
	if err != nil {
		return IssuedCode{}, err
	}

	code, err := e.generateCode()
	if err != nil {
		return IssuedCode{}, err
	}

	encoded, err := e.seal(code.Code, b)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("sealing rotated envelope for tier %q: %w", tier, err)
	}

	ta.Envelopes[artifact.MethodOneTime] = encoded
	expiry := code.ExpiresAt
	ta.CodeExpiresAt = &expiry
	return code, nil
}

func (e *Encryptor) generateCode() (IssuedCode, error) {
	code, err := util.RandomCode(e.codeLength)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("generating one-time code: %w", err)
	}
	return IssuedCode{
		Code:      code,
		ExpiresAt: e.now().UTC().Add(e.codeTTL),
	}, nil
}
