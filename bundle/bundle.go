// Package bundle defines the content model protected by the gate: a set of
// typed sections (pricing tables, checklists, gallery metadata) plus a
// free-form raw escape hatch, with a canonical JSON serialization used as
// the encryption plaintext.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the concrete shape of a section.
type Kind string

const (
	KindPricing   Kind = "pricing"
	KindChecklist Kind = "checklist"
	KindGallery   Kind = "gallery"
	KindRaw       Kind = "raw"
)

// ErrUnknownKind is returned when an unrecognized section kind is encountered.
var ErrUnknownKind = errors.New("unknown section kind")

// Bundle is one tier's protected content. Immutable once produced by the
// build step.
type Bundle struct {
	Sections []Section `json:"sections"`
}

// Section is a tagged union: Kind selects exactly one populated payload.
type Section struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	Kind      Kind            `json:"kind"`
	Pricing   *PricingTable   `json:"pricing,omitempty"`
	Checklist *Checklist      `json:"checklist,omitempty"`
	Gallery   *GalleryMeta    `json:"gallery,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// PricingTable lists service tiers and their rates.
type PricingTable struct {
	Tiers []PricingTier `json:"tiers"`
}

// PricingTier is one priced offering.
type PricingTier struct {
	Name      string   `json:"name"`
	Price     string   `json:"price"`
	Unit      string   `json:"unit,omitempty"`
	Features  []string `json:"features,omitempty"`
	Highlight bool     `json:"highlight,omitempty"`
}

// Checklist holds grouped workflow steps.
type Checklist struct {
	Groups []ChecklistGroup `json:"groups"`
}

// ChecklistGroup is one named phase of a checklist.
type ChecklistGroup struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// GalleryMeta describes protected gallery links. URLs here are untrusted at
// render time and must pass the renderer's host allowlist.
type GalleryMeta struct {
	Galleries []GalleryRef `json:"galleries"`
}

// GalleryRef points at one hosted gallery.
type GalleryRef struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Date       string `json:"date,omitempty"`
	URL        string `json:"url"`
	CoverURL   string `json:"cover_url,omitempty"`
	ImageCount int    `json:"image_count,omitempty"`
}

// Validate checks that every section's payload matches its kind.
func (b *Bundle) Validate() error {
	for i, s := range b.Sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("section %d (%q): %w", i, s.ID, err)
		}
	}
	return nil
}

func (s *Section) validate() error {
	if s.ID == "" {
		return errors.New("section ID must not be empty")
	}
	var want, others bool
	switch s.Kind {
	case KindPricing:
		want = s.Pricing != nil
		others = s.Checklist != nil || s.Gallery != nil || len(s.Raw) > 0
	case KindChecklist:
		want = s.Checklist != nil
		others = s.Pricing != nil || s.Gallery != nil || len(s.Raw) > 0
	case KindGallery:
		want = s.Gallery != nil
		others = s.Pricing != nil || s.Checklist != nil || len(s.Raw) > 0
	case KindRaw:
		want = len(s.Raw) > 0 && json.Valid(s.Raw)
		others = s.Pricing != nil || s.Checklist != nil || s.Gallery != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if !want {
		return fmt.Errorf("kind %q requires its payload", s.Kind)
	}
	if others {
		return fmt.Errorf("kind %q must not carry other payloads", s.Kind)
	}
	return nil
}

// Marshal serializes the bundle to its canonical byte encoding, the form
// that gets encrypted. Validation runs first so a malformed bundle can never
// reach the encryptor.
func Marshal(b *Bundle) ([]byte, error) {
	if b == nil {
		return nil, errors.New("bundle must not be nil")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshaling bundle: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes and validates a bundle from its canonical encoding.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshaling bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
