// Package storage provides the persistence layer for the build tool:
// artifact snapshots per build, and the one-time-code issuance log kept for
// audit. The codes themselves are never stored, only their hashes.
package storage

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jmcleod/pagegate/internal/util"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// IssueRecord is one one-time-code issuance event.
type IssueRecord struct {
	ID        string    `json:"id"`
	Tier      string    `json:"tier"`
	CodeHash  string    `json:"code_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HashCode produces the stored fingerprint of an issued code. Enough to
// correlate an issuance with a code someone reports back, useless for
// recovering the code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return util.HexEncode(sum[:])
}

// Repository persists build outputs.
type Repository interface {
	// PutArtifact stores an encoded artifact snapshot under its build ID.
	PutArtifact(buildID string, data []byte) error
	// GetArtifact retrieves a snapshot by build ID.
	GetArtifact(buildID string) ([]byte, error)
	// ListArtifacts returns stored build IDs in key order.
	ListArtifacts() ([]string, error)

	// AppendIssue adds a record to the issuance log.
	AppendIssue(rec IssueRecord) error
	// ListIssues returns issuance records, oldest first. Empty tier means
	// all tiers.
	ListIssues(tier string) ([]IssueRecord, error)
	// PruneIssues deletes all but the most recent keep records.
	PruneIssues(keep int) error

	Close() error
}
