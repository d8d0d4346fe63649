package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const slotTimeout = 2 * time.Second

// EventKind describes the mutation that produced a notification.
type EventKind int

const (
	EventSet EventKind = iota + 1
	EventCleared
	EventExpired
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventCleared:
		return "cleared"
	case EventExpired:
		return "expired"
	}
	return "unknown"
}

// Event is delivered to every listener after a set or clear. Session is nil
// when the store became absent.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Listener is invoked synchronously after each mutation.
type Listener func(Event)

// Unsubscribe deregisters a listener. It is safe to call more than once and
// from inside a notification.
type Unsubscribe func()

// Ticket orders a pending write against clears. A ticket reserved before the
// most recent Clear can no longer be committed.
type Ticket struct {
	seq uint64
}

type subscription struct {
	fn     Listener
	active atomic.Bool
}

type mutation struct {
	kind    EventKind
	session Session
	// loaded marks a set that came from the slot and needs no write back.
	loaded bool
}

// step is an applied mutation waiting for its slot write and notification.
type step struct {
	ev      Event
	persist bool
}

// Store holds the current Session for one client and notifies subscribers
// of every change. Set and Clear issued while a notification pass is running,
// from a listener or from another goroutine, are queued and applied in call
// order by the goroutine running the pass before it returns. Slot writes
// happen on that same goroutine with s.mu released, so readers never wait on
// slot I/O.
type Store struct {
	mu        sync.Mutex
	current   *Session
	seq       uint64
	clearedAt uint64
	subs      []*subscription
	notifying bool
	pending   []mutation
	closed    bool
	slot      Slot
	nowTime   func() time.Time
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNowTime sets the clock used for expiry checks.
func WithNowTime(nowTime func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowTime
	}
}

// WithSlot makes the store write through to a durable slot.
func WithSlot(slot Slot) Option {
	return func(s *Store) {
		s.slot = slot
	}
}

// WithLogger replaces the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the current session.
func (s *Store) Get() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return s.current.clone(), true
}

// IsValid reports whether a session is present and unexpired right now.
func (s *Store) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.ValidAt(s.nowTime())
}

// Set replaces the current session.
func (s *Store) Set(sess Session) error {
	return s.Commit(s.Reserve(), sess)
}

// Reserve takes a ticket for a later Commit. Callers reserve before starting
// work that ends in a write so that a Clear issued meanwhile wins.
func (s *Store) Reserve() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return Ticket{seq: s.seq}
}

// Commit writes sess if no Clear happened after t was reserved. If a
// notification pass is running the write is queued and Commit returns nil
// before it is applied; the pass validates it again when applying it and
// drops it with a log entry if it has expired by then.
func (s *Store) Commit(t Ticket, sess Session) error {
	if err := sess.Validate(s.nowTime()); err != nil {
		s.logger.Error().Err(err).Str("subject_id", sess.SubjectID).Msg("rejected session write")
		return fmt.Errorf("[Store.Commit] %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrStoreClosed
	}
	if t.seq < s.clearedAt {
		s.mu.Unlock()
		return fmt.Errorf("[Store.Commit] %w", apperrors.ErrStaleSession)
	}
	m := mutation{kind: EventSet, session: sess.clone()}
	if s.notifying {
		s.pending = append(s.pending, m)
		s.mu.Unlock()
		return nil
	}
	s.publishLocked(s.applyLocked(m))
	return nil
}

// Clear drops the current session and invalidates every outstanding ticket.
// Clearing an absent session still notifies.
func (s *Store) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.clearedAt = s.seq
	m := mutation{kind: EventCleared}
	if s.notifying {
		s.pending = append(s.pending, m)
		s.mu.Unlock()
		return
	}
	s.publishLocked(s.applyLocked(m))
}

// Expire clears the session if it has expired and reports whether it did.
// Outstanding tickets stay valid.
func (s *Store) Expire() bool {
	s.mu.Lock()
	if s.closed || s.current == nil || s.current.ValidAt(s.nowTime()) {
		s.mu.Unlock()
		return false
	}
	m := mutation{kind: EventExpired}
	if s.notifying {
		s.pending = append(s.pending, m)
		s.mu.Unlock()
		return true
	}
	s.publishLocked(s.applyLocked(m))
	return true
}

// Subscribe registers fn for every subsequent mutation.
func (s *Store) Subscribe(fn Listener) Unsubscribe {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			s.subs = slices.DeleteFunc(s.subs, func(x *subscription) bool { return x == sub })
			s.mu.Unlock()
		})
	}
}

// Rehydrate loads the durable slot into the store. Missing, malformed and
// expired records leave the store absent; the latter two are deleted.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.slot == nil {
		return nil
	}
	sess, ok, err := s.slot.Load(ctx)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrInvalidSessionShape) {
			return fmt.Errorf("[Store.Rehydrate] slot.Load: %w", err)
		}
		s.logger.Warn().Err(err).Msg("discarding malformed persisted session")
		return s.deleteSlot(ctx)
	}
	if !ok {
		return nil
	}
	if err := sess.Validate(s.nowTime()); err != nil {
		s.logger.Debug().Err(err).Str("subject_id", sess.SubjectID).Msg("discarding expired persisted session")
		return s.deleteSlot(ctx)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrStoreClosed
	}
	m := mutation{kind: EventSet, session: sess, loaded: true}
	if s.notifying {
		s.pending = append(s.pending, m)
		s.mu.Unlock()
		return nil
	}
	s.publishLocked(s.applyLocked(m))
	return nil
}

// Close drops all listeners. The persisted slot is left in place so a new
// store for the same client can rehydrate it.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		sub.active.Store(false)
	}
	s.subs = nil
	s.pending = nil
}

func (s *Store) deleteSlot(ctx context.Context) error {
	if err := s.slot.Delete(ctx); err != nil {
		return fmt.Errorf("[Store.Rehydrate] slot.Delete: %w", err)
	}
	return nil
}

// applyLocked mutates state. The slot write is left to publishLocked.
func (s *Store) applyLocked(m mutation) step {
	switch m.kind {
	case EventSet:
		sess := m.session
		s.current = &sess
		snapshot := sess.clone()
		return step{ev: Event{Kind: EventSet, Session: &snapshot}, persist: s.slot != nil && !m.loaded}
	default:
		s.current = nil
		return step{ev: Event{Kind: m.kind}, persist: s.slot != nil}
	}
}

// persist writes an applied event through to the slot. Only the goroutine
// running the notification pass calls it, so writes land in apply order.
func (s *Store) persist(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), slotTimeout)
	defer cancel()

	var err error
	if ev.Session == nil {
		err = s.slot.Delete(ctx)
	} else {
		err = s.slot.Save(ctx, ev.Session.clone())
	}
	if err != nil {
		s.logger.Error().Err(err).Str("event", ev.Kind.String()).Msg("failed to persist session")
	}
}

// publishLocked runs notification passes until the queue is drained. It must
// be called with s.mu held and returns with it released.
func (s *Store) publishLocked(st step) {
	s.notifying = true
	for ok := true; ok; st, ok = s.nextLocked() {
		subs := slices.Clone(s.subs)
		s.mu.Unlock()
		if st.persist {
			s.persist(st.ev)
		}
		for _, sub := range subs {
			if sub.active.Load() {
				s.invoke(sub.fn, st.ev)
			}
		}
		s.mu.Lock()
	}
	s.pending = nil
	s.notifying = false
	s.mu.Unlock()
}

// nextLocked applies the next queued mutation. A queued expiry is dropped if
// the session it targeted has since been replaced, and a queued set is
// dropped if it is no longer valid.
func (s *Store) nextLocked() (step, bool) {
	for !s.closed && len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		now := s.nowTime()
		switch next.kind {
		case EventExpired:
			if s.current == nil || s.current.ValidAt(now) {
				continue
			}
		case EventSet:
			if err := next.session.Validate(now); err != nil {
				s.logger.Error().Err(err).Str("subject_id", next.session.SubjectID).Msg("dropped queued session write")
				continue
			}
		}
		return s.applyLocked(next), true
	}
	return step{}, false
}

func (s *Store) invoke(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("event", ev.Kind.String()).Msg("session listener panicked")
		}
	}()
	fn(ev)
}
