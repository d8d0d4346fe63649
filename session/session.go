package session

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
)

// Session is the authenticated-user state held between requests. It is either
// fully populated or absent; the store never holds a partial Session.
type Session struct {
	SubjectID string     `json:"subject_id"`
	Token     string     `json:"token"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil for non-expiring tokens
}

// ValidAt reports whether the session has not expired at now. The expiry
// instant itself is already invalid.
func (s Session) ValidAt(now time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// Validate checks the session is complete and unexpired at now.
func (s Session) Validate(now time.Time) error {
	if err := s.validateShape(); err != nil {
		return err
	}
	if !s.ValidAt(now) {
		return fmt.Errorf("%w: expires_at %s is not after %s", apperrors.ErrInvalidSessionShape,
			s.ExpiresAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}

func (s Session) validateShape() error {
	switch {
	case s.SubjectID == "":
		return fmt.Errorf("%w: subject_id is required", apperrors.ErrInvalidSessionShape)
	case s.Token == "":
		return fmt.Errorf("%w: token is required", apperrors.ErrInvalidSessionShape)
	case s.IssuedAt.IsZero():
		return fmt.Errorf("%w: issued_at is required", apperrors.ErrInvalidSessionShape)
	case s.ExpiresAt != nil && s.ExpiresAt.IsZero():
		return fmt.Errorf("%w: expires_at is zero", apperrors.ErrInvalidSessionShape)
	}
	return nil
}

// TimeLeft returns the remaining lifetime and false for non-expiring sessions.
func (s Session) TimeLeft(now time.Time) (time.Duration, bool) {
	if s.ExpiresAt == nil {
		return 0, false
	}
	return s.ExpiresAt.Sub(now), true
}

func (s Session) clone() Session {
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		s.ExpiresAt = &exp
	}
	return s
}

// Encode serialises a session for a durable slot.
func Encode(s Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("[session.Encode] json.Marshal: %w", err)
	}
	return data, nil
}

// Decode parses a slot record. Undecodable or incomplete records are reported
// as ErrInvalidSessionShape; expiry is left to the caller.
func Decode(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidSessionShape, err)
	}
	if err := s.validateShape(); err != nil {
		return Session{}, err
	}
	return s, nil
}
