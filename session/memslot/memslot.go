// Package memslot keeps persisted sessions in process memory. Stores rebuilt
// for the same key within one process rehydrate from it.
package memslot

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-wallet-web/session"
)

// Bucket is an in-memory map of persisted sessions keyed by client id.
type Bucket struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

// NewBucket creates an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{
		sessions: make(map[string]session.Session),
	}
}

// Slot returns the slot for key.
func (b *Bucket) Slot(key string) session.Slot {
	return &slot{bucket: b, key: key}
}

// Len returns the number of persisted sessions.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

type slot struct {
	bucket *Bucket
	key    string
}

func (s *slot) Load(_ context.Context) (session.Session, bool, error) {
	if s.key == "" {
		return session.Session{}, false, fmt.Errorf("key is required")
	}
	s.bucket.mu.RLock()
	defer s.bucket.mu.RUnlock()
	sess, ok := s.bucket.sessions[s.key]
	if !ok {
		return session.Session{}, false, nil
	}
	return copySession(sess), true, nil
}

func (s *slot) Save(_ context.Context, sess session.Session) error {
	if s.key == "" {
		return fmt.Errorf("key is required")
	}
	s.bucket.mu.Lock()
	defer s.bucket.mu.Unlock()
	s.bucket.sessions[s.key] = copySession(sess)
	return nil
}

func (s *slot) Delete(_ context.Context) error {
	if s.key == "" {
		return fmt.Errorf("key is required")
	}
	s.bucket.mu.Lock()
	defer s.bucket.mu.Unlock()
	delete(s.bucket.sessions, s.key)
	return nil
}

func copySession(sess session.Session) session.Session {
	if sess.ExpiresAt != nil {
		exp := *sess.ExpiresAt
		sess.ExpiresAt = &exp
	}
	return sess
}
