// Package artifact defines the published artifact layout: for each access
// tier, the encoded envelope per unlock method plus the metadata needed at
// runtime. Encoded envelopes are the only representation of protected
// content allowed in an artifact.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/pagegate/envelope"
)

// Tier names an independent protection scope with its own passwords and
// encrypted content.
type Tier string

// Method identifies how a tier is unlocked. A tier may carry both: the same
// logical content encrypted twice under independently derived keys
// (dual-blob), so either credential unlocks it and each can be revoked
// without touching the other.
type Method string

const (
	// MethodMaster is the long-lived password.
	MethodMaster Method = "master"
	// MethodOneTime is the short-lived rotating code.
	MethodOneTime Method = "otp"
)

// MethodOrder is the order in which the gate tries a tier's envelopes.
var MethodOrder = []Method{MethodMaster, MethodOneTime}

var (
	// ErrTierNotFound indicates the artifact has no such tier.
	ErrTierNotFound = errors.New("tier not found")
	// ErrInvalid indicates the artifact fails structural validation.
	ErrInvalid = errors.New("invalid artifact")
)

// Artifact is the full set of embeddable blobs produced by one build.
type Artifact struct {
	BuildID     string                 `json:"build_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Tiers       map[Tier]*TierArtifact `json:"tiers"`
}

// TierArtifact holds one tier's encoded envelopes, keyed by unlock method.
type TierArtifact struct {
	Envelopes map[Method]string `json:"envelopes"`
	// CodeExpiresAt is the validity deadline for the one-time code method.
	// Attempts after this instant are rejected before any key derivation.
	CodeExpiresAt *time.Time `json:"code_expires_at,omitempty"`
}

// Validate checks structure: every tier has at least one envelope, every
// envelope decodes cleanly, only known methods appear, and a one-time
// envelope carries its expiry. It never decrypts anything.
func (a *Artifact) Validate() error {
	if len(a.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalid)
	}
	for tier, ta := range a.Tiers {
		if ta == nil || len(ta.Envelopes) == 0 {
			return fmt.Errorf("%w: tier %q has no envelopes", ErrInvalid, tier)
		}
		for method, encoded := range ta.Envelopes {
			if method != MethodMaster && method != MethodOneTime {
				return fmt.Errorf("%w: tier %q has unknown method %q", ErrInvalid, tier, method)
			}
			if _, err := envelope.Decode(encoded); err != nil {
				return fmt.Errorf("%w: tier %q method %q: %v", ErrInvalid, tier, method, err)
			}
		}
		_, hasOTP := ta.Envelopes[MethodOneTime]
		if hasOTP && ta.CodeExpiresAt == nil {
			return fmt.Errorf("%w: tier %q has a one-time envelope without expiry", ErrInvalid, tier)
		}
	}
	return nil
}

// TierFor returns the named tier's artifact.
func (a *Artifact) TierFor(tier Tier) (*TierArtifact, error) {
	ta, ok := a.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTierNotFound, tier)
	}
	return ta, nil
}

// Encode serializes the artifact for writing to disk.
func (a *Artifact) Encode() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling artifact: %w", err)
	}
	return data, nil
}

// Decode parses and validates a serialized artifact.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
