// Package store persists the deployment configuration and tunnel history using BoltDB.
// All writes are transactional; reads use read-only transactions to minimise contention.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/errs"
)

// Bucket names
var (
	bucketConfig       = []byte("config")
	bucketTunnelEvents = []byte("tunnel_events")
)

// keyDeployment holds the single deployment record.
var keyDeployment = []byte("deployment")

// Store wraps a BoltDB instance with typed accessor methods.
type Store struct {
	bolt *bbolt.DB
	log  *logger.Logger
}

// Open opens (or creates) the state database at the given path.
func Open(path string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errs.Newf(errs.ErrStateWrite, "store.open", "create data dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.Newf(errs.ErrStateRead, "store.open", "open state db %q: %w", path, err).
			WithAdvice("another agentdeck process may hold the database lock")
	}

	// Ensure all buckets exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketConfig, bucketTunnelEvents} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errs.Wrap(fmt.Errorf("init buckets: %w", err), errs.ErrStateWrite, "store.open")
	}

	if log == nil {
		log = logger.Discard()
	}
	return &Store{bolt: db, log: log.With("component", "store")}, nil
}

// Close closes the underlying BoltDB file.
func (s *Store) Close() error {
	return s.bolt.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Deployment configuration
// ─────────────────────────────────────────────────────────────────────────────

// Load returns the persisted deployment configuration. A missing or unreadable
// record yields the Unset-mode default; problems are logged, never returned.
func (s *Store) Load() v1.DeploymentConfig {
	var cfg v1.DeploymentConfig
	found, err := s.getJSON(bucketConfig, keyDeployment, &cfg)
	if err != nil {
		s.log.Warn("deployment config unreadable, starting unconfigured", "err", err)
		return v1.DeploymentConfig{}
	}
	if !found {
		return v1.DeploymentConfig{}
	}
	return cfg
}

// Save overwrites the deployment configuration in a single transaction.
func (s *Store) Save(cfg v1.DeploymentConfig) error {
	if err := s.putJSON(bucketConfig, keyDeployment, cfg); err != nil {
		return errs.Wrap(err, errs.ErrStateWrite, "store.save")
	}
	return nil
}

// Reset overwrites the deployment record with an Unset-mode record.
func (s *Store) Reset() error {
	return s.Save(v1.DeploymentConfig{})
}

// ─────────────────────────────────────────────────────────────────────────────
// Tunnel history
// ─────────────────────────────────────────────────────────────────────────────

// PutTunnelEvent appends a tunnel event record to the history.
func (s *Store) PutTunnelEvent(ev v1.TunnelEvent) error {
	if err := s.putJSON(bucketTunnelEvents, tunnelEventKey(ev), ev); err != nil {
		return errs.Wrap(err, errs.ErrStateWrite, "store.tunnel_event")
	}
	return nil
}

// tunnelEventKey is the big-endian UnixNano of the event followed by its ID,
// so cursor order is chronological.
func tunnelEventKey(ev v1.TunnelEvent) []byte {
	key := make([]byte, 8, 8+len(ev.ID))
	binary.BigEndian.PutUint64(key, uint64(ev.At.UnixNano()))
	return append(key, ev.ID...)
}

// ListTunnelEvents returns up to limit events, newest first. limit <= 0 returns all.
func (s *Store) ListTunnelEvents(limit int) ([]v1.TunnelEvent, error) {
	var events []v1.TunnelEvent
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTunnelEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var ev v1.TunnelEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal tunnel event %x: %w", k, err)
			}
			events = append(events, ev)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStateRead, "store.tunnel_events")
	}
	return events, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Generic helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) putJSON(bucket, key []byte, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *Store) getJSON(bucket, key []byte, out any) (bool, error) {
	var found bool
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}
