// Package memory provides a thread-safe in-memory implementation of
// storage.Repository. Suitable for tests and dry runs.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmcleod/pagegate/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
	issues    []storage.IssueRecord
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{artifacts: make(map[string][]byte)}
}

func (r *Repository) PutArtifact(buildID string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[buildID] = append([]byte(nil), data...)
	return nil
}

func (r *Repository) GetArtifact(buildID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.artifacts[buildID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", buildID, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (r *Repository) ListArtifacts() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.artifacts))
	for id := range r.artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) AppendIssue(rec storage.IssueRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, rec)
	sort.Slice(r.issues, func(i, j int) bool {
		return r.issues[i].IssuedAt.Before(r.issues[j].IssuedAt)
	})
	return nil
}

func (r *Repository) ListIssues(tier string) ([]storage.IssueRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var recs []storage.IssueRecord
	for _, rec := range r.issues {
		if tier == "" || rec.Tier == tier {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (r *Repository) PruneIssues(keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.issues) > keep {
		r.issues = append([]storage.IssueRecord(nil), r.issues[len(r.issues)-keep:]...)
	}
	return nil
}

func (r *Repository) Close() error {
	return nil
}
