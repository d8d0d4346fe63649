// Package boltslot persists sessions in a bbolt file, one record per client
// key, so a session survives process restarts.
package boltslot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-wallet-web/session"
	bolt "go.etcd.io/bbolt"
)

const defaultBucket = "sessions"

// DB wraps a bbolt file holding persisted sessions.
type DB struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the bbolt file and ensures the bucket exists.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[boltslot.Open] os.MkdirAll: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("[boltslot.Open] bolt.Open: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(defaultBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("[boltslot.Open] create bucket: %w", err)
	}

	return &DB{db: db, bucket: []byte(defaultBucket)}, nil
}

// Close closes the underlying file.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Slot returns the slot for key.
func (d *DB) Slot(key string) session.Slot {
	return &slot{db: d, key: []byte(key)}
}

type slot struct {
	db  *DB
	key []byte
}

func (s *slot) Load(_ context.Context) (session.Session, bool, error) {
	if s.db == nil || s.db.db == nil {
		return session.Session{}, false, bolt.ErrDatabaseNotOpen
	}
	var payload []byte
	err := s.db.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(s.db.bucket).Get(s.key); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return session.Session{}, false, fmt.Errorf("[boltslot.Load] %w", err)
	}
	if payload == nil {
		return session.Session{}, false, nil
	}
	sess, err := session.Decode(payload)
	if err != nil {
		return session.Session{}, false, fmt.Errorf("[boltslot.Load] %w", err)
	}
	return sess, true, nil
}

func (s *slot) Save(_ context.Context, sess session.Session) error {
	if s.db == nil || s.db.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	payload, err := session.Encode(sess)
	if err != nil {
		return err
	}
	return s.db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.db.bucket).Put(s.key, payload)
	})
}

func (s *slot) Delete(_ context.Context) error {
	if s.db == nil || s.db.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.db.bucket).Delete(s.key)
	})
}
