// Package build implements the build-time encryptor: it turns plaintext
// content bundles into the encoded envelopes embedded in a published page,
// one envelope per (tier, unlock method). It retains no passwords, keys, or
// plaintext after a build, and refuses to produce an artifact with a
// missing password or bundle rather than ever falling back to plaintext.
package build

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/bundle"
	"github.com/jmcleod/pagegate/envelope"
	"github.com/jmcleod/pagegate/internal/util"
	"github.com/jmcleod/pagegate/internal/uuid"
)

var (
	// ErrMissingPassword aborts a build when a master-method request has no
	// password. Hard failure: a silent fallback would strand a tier's
	// content or emit it unencrypted.
	ErrMissingPassword = errors.New("missing password")
	// ErrMissingBundle aborts a build when a request has no content bundle.
	ErrMissingBundle = errors.New("missing content bundle")
	// ErrDuplicateRequest aborts a build containing the same (tier, method) twice.
	ErrDuplicateRequest = errors.New("duplicate tier/method request")
)

const (
	// DefaultCodeTTL is the validity window for generated one-time codes.
	DefaultCodeTTL = 48 * time.Hour
	// DefaultCodeLength is the generated one-time code length.
	DefaultCodeLength = 8
)

// Request asks for one (tier, method) envelope. For the one-time method the
// password may be left empty, in which case a fresh code is generated and
// returned out-of-band in the Result; it is never embedded in the artifact.
type Request struct {
	Tier     artifact.Tier
	Method   artifact.Method
	Bundle   *bundle.Bundle
	Password string
}

// IssuedCode is a generated one-time code, reported out-of-band.
type IssuedCode struct {
	Code      string
	ExpiresAt time.Time
}

// Result is the output of one build.
type Result struct {
	Artifact *artifact.Artifact
	// Codes holds generated one-time codes per tier. Callers communicate
	// these to recipients out-of-band and must not persist them.
	Codes map[artifact.Tier]IssuedCode
}

// Encryptor is the build-time orchestrator. Stateless across builds; safe
// to reuse.
type Encryptor struct {
	iterations int
	codeTTL    time.Duration
	codeLength int
	now        func() time.Time
}

// Option configures an Encryptor.
type Option func(*Encryptor)

// WithIterations sets the PBKDF2 iteration count for new envelopes. The
// count is recorded per envelope, so changing it between builds never
// strands old artifacts.
func WithIterations(n int) Option {
	return func(e *Encryptor) { e.iterations = n }
}

// WithCodeTTL sets the one-time code validity window.
func WithCodeTTL(ttl time.Duration) Option {
	return func(e *Encryptor) { e.codeTTL = ttl }
}

// WithCodeLength sets the generated one-time code length.
func WithCodeLength(n int) Option {
	return func(e *Encryptor) { e.codeLength = n }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Encryptor) { e.now = now }
}

// New creates an Encryptor with production defaults.
func New(opts ...Option) *Encryptor {
	e := &Encryptor{
		iterations: util.DefaultKDFIterations,
		codeTTL:    DefaultCodeTTL,
		codeLength: DefaultCodeLength,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build seals every request into an envelope under a freshly generated salt
// and nonce and assembles the artifact. Two builds of the same inputs
// produce different ciphertexts; correctness is the round-trip property,
// not output equality.
func (e *Encryptor) Build(reqs []Request) (*Result, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no requests", ErrMissingBundle)
	}

	res := &Result{
		Artifact: &artifact.Artifact{
			BuildID:     uuid.New(),
			GeneratedAt: e.now().UTC(),
			Tiers:       make(map[artifact.Tier]*artifact.TierArtifact),
		},
		Codes: make(map[artifact.Tier]IssuedCode),
	}

	for _, req := range reqs {
		if req.Bundle == nil {
			return nil, fmt.Errorf("%w: tier %q method %q", ErrMissingBundle, req.Tier, req.Method)
		}

		ta := res.Artifact.Tiers[req.Tier]
		if ta == nil {
			ta = &artifact.TierArtifact{Envelopes: make(map[artifact.Method]string)}
			res.Artifact.Tiers[req.Tier] = ta
		}
		if _, exists := ta.Envelopes[req.Method]; exists {
			return nil, fmt.Errorf("%w: tier %q method %q", ErrDuplicateRequest, req.Tier, req.Method)
		}

		password := req.Password
		switch req.Method {
		case artifact.MethodMaster:
			if password == "" {
				return nil, fmt.Errorf("%w: tier %q method %q", ErrMissingPassword, req.Tier, req.Method)
			}
		case artifact.MethodOneTime:
			expiry := e.now().UTC().Add(e.codeTTL)
			if password == "" {
				issued, err := e.generateCode()
				if err != nil {
					return nil, err
				}
				password, expiry = issued.Code, issued.ExpiresAt
			}
			ta.CodeExpiresAt = &expiry
			res.Codes[req.Tier] = IssuedCode{Code: password, ExpiresAt: expiry}
		default:
			return nil, fmt.Errorf("%w: tier %q has unknown method %q", artifact.ErrInvalid, req.Tier, req.Method)
		}

		encoded, err := e.seal(password, req.Bundle)
		if err != nil {
			return nil, fmt.Errorf("sealing tier %q method %q: %w", req.Tier, req.Method, err)
		}
		ta.Envelopes[req.Method] = encoded
	}

	if err := res.Artifact.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Encryptor) seal(password string, b *bundle.Bundle) (string, error) {
	plaintext, err := bundle.Marshal(b)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(plaintext)

	env, err := envelope.Seal(password, plaintext, e.iterations)
	if err != nil {
		return "", err
	}
	return env.Encode(), nil
}
