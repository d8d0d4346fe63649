package session

import "context"

// Slot is a durable key-value slot holding at most one persisted session.
// Load reports ok=false when nothing is stored and returns an error wrapping
// ErrInvalidSessionShape when the record cannot be decoded.
type Slot interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context) error
}
