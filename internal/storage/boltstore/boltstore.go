// Package boltstore is the go.etcd.io/bbolt-backed implementation of
// storage.Store: one bucket per table name spec §6 lists, JSON-encoded
// values, auto-incrementing int64 keys via bucket.NextSequence.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/module-gw/gproxy/internal/storage"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

var buckets = []string{
	"providers",
	"credentials",
	"credential_disallow",
	"users",
	"api_keys",
	"global_config",
	"downstream_traffic",
	"upstream_traffic",
}

type Store struct {
	db *bbolt.DB
}

// Open creates/opens the bbolt file at path and ensures every table
// bucket spec §6 names exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func (s *Store) ListProviders() ([]storage.Provider, error) {
	var out []storage.Provider
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("providers"))
		return b.ForEach(func(k, v []byte) error {
			var p storage.Provider
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (s *Store) UpsertProvider(p storage.Provider) (storage.Provider, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("providers"))
		if p.ID == 0 {
			seq, _ := b.NextSequence()
			p.ID = int64(seq)
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put(itob(p.ID), raw)
	})
	return p, err
}

func (s *Store) ListCredentials() ([]storage.Credential, error) {
	var out []storage.Credential
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("credentials"))
		return b.ForEach(func(k, v []byte) error {
			var c storage.Credential
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

func (s *Store) UpsertCredential(input storage.AdminCredentialInput) (storage.Credential, error) {
	c := storage.Credential{
		ID:         input.ID,
		ProviderID: input.ProviderID,
		Attributes: input.Attributes,
		Metadata:   input.Metadata,
		Weight:     input.Weight,
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("credentials"))
		if c.ID == 0 {
			seq, _ := b.NextSequence()
			c.ID = int64(seq)
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put(itob(c.ID), raw)
	})
	return c, err
}

func (s *Store) InsertDownstream(event storage.DownstreamTrafficEvent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("downstream_traffic"))
		seq, _ := b.NextSequence()
		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return b.Put(itob(int64(seq)), raw)
	})
}

func (s *Store) InsertUpstream(event storage.UpstreamTrafficEvent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("upstream_traffic"))
		seq, _ := b.NextSequence()
		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return b.Put(itob(int64(seq)), raw)
	})
}

func (s *Store) GetUpstreamUsage(credentialID int64, model string, start, end time.Time) (storage.TrafficUsage, error) {
	var usage storage.TrafficUsage
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("upstream_traffic"))
		return b.ForEach(func(k, v []byte) error {
			var ev storage.UpstreamTrafficEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if ev.CredentialID != credentialID {
				return nil
			}
			if model != "" && ev.Model != model {
				return nil
			}
			if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
				return nil
			}
			usage.InputTokens += ev.InputTokens
			usage.OutputTokens += ev.OutputTokens
			usage.RequestCount++
			return nil
		})
	})
	return usage, err
}

// EnsureAdminUser creates the admin user/api-key row if absent, hashing
// key with bcrypt before it's ever written, per SPEC_FULL.md §11's
// golang.org/x/crypto wiring.
func (s *Store) EnsureAdminUser(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket([]byte("users"))
		if users.Get([]byte("admin")) != nil {
			return nil
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("boltstore: hash admin key: %w", err)
		}
		if err := users.Put([]byte("admin"), []byte("admin")); err != nil {
			return err
		}
		keys := tx.Bucket([]byte("api_keys"))
		return keys.Put([]byte("admin"), hash)
	})
}

func (s *Store) Sync() error {
	return s.db.Sync()
}

func (s *Store) Close() error {
	return s.db.Close()
}
