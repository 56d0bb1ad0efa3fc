// Package bbolt provides a BBolt-backed storage repository for the build tool.
package bbolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/pagegate/storage"
)

var (
	artifactsBucket = []byte("artifacts")
	issuesBucket    = []byte("issues")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns
// a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutArtifact(buildID string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(artifactsBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(buildID), data)
	})
}

func (s *Store) GetArtifact(buildID string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(artifactsBucket)
		if b == nil {
			return fmt.Errorf("%s: %w", buildID, storage.ErrNotFound)
		}
		v := b.Get([]byte(buildID))
		if v == nil {
			return fmt.Errorf("%s: %w", buildID, storage.ErrNotFound)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) ListArtifacts() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(artifactsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// issueKey orders the log chronologically. RFC3339Nano sorts
// lexicographically for UTC timestamps; the record ID breaks ties.
func issueKey(rec storage.IssueRecord) []byte {
	return []byte(rec.IssuedAt.UTC().Format("2006-01-02T15:04:05.000000000Z") + "/" + rec.ID)
}

func (s *Store) AppendIssue(rec storage.IssueRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(issuesBucket)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(issueKey(rec), data)
	})
}

func (s *Store) ListIssues(tier string) ([]storage.IssueRecord, error) {
	var recs []storage.IssueRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(issuesBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec storage.IssueRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if tier == "" || rec.Tier == tier {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) PruneIssues(keep int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(issuesBucket)
		if b == nil {
			return nil
		}
		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		if len(keys) <= keep {
			return nil
		}
		for _, k := range keys[:len(keys)-keep] {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
