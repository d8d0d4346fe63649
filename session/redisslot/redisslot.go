// Package redisslot persists sessions in Redis. Records expire with the
// session they hold.
package redisslot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "wallet:session:"

// Slots hands out Redis-backed slots under a common key prefix.
type Slots struct {
	client  redis.UniversalClient
	prefix  string
	nowTime func() time.Time
}

// Option configures Slots.
type Option func(*Slots)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Slots) {
		s.prefix = prefix
	}
}

// WithNowTime sets the clock used to compute record TTLs.
func WithNowTime(nowTime func() time.Time) Option {
	return func(s *Slots) {
		s.nowTime = nowTime
	}
}

// New returns a slot factory over client.
func New(client redis.UniversalClient, opts ...Option) *Slots {
	s := &Slots{
		client:  client,
		prefix:  defaultPrefix,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slot returns the slot for key.
func (s *Slots) Slot(key string) session.Slot {
	return &slot{slots: s, key: s.prefix + key}
}

type slot struct {
	slots *Slots
	key   string
}

func (s *slot) Load(ctx context.Context) (session.Session, bool, error) {
	payload, err := s.slots.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.Session{}, false, nil
		}
		return session.Session{}, false, fmt.Errorf("[redisslot.Load] %w", err)
	}
	sess, err := session.Decode(payload)
	if err != nil {
		return session.Session{}, false, fmt.Errorf("[redisslot.Load] %w", err)
	}
	return sess, true, nil
}

func (s *slot) Save(ctx context.Context, sess session.Session) error {
	payload, err := session.Encode(sess)
	if err != nil {
		return err
	}

	// zero means no expiry in go-redis
	var ttl time.Duration
	if left, ok := sess.TimeLeft(s.slots.nowTime()); ok {
		if left <= 0 {
			return s.Delete(ctx)
		}
		ttl = left
	}
	if err := s.slots.client.Set(ctx, s.key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("[redisslot.Save] %w", err)
	}
	return nil
}

func (s *slot) Delete(ctx context.Context) error {
	if err := s.slots.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("[redisslot.Delete] %w", err)
	}
	return nil
}
