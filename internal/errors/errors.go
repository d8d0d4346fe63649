package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common error types for the wallet front end
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many failed login attempts")
	ErrServiceUnavailable = errors.New("identity service unavailable")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrUserNotVerified    = errors.New("user is not verified")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")

	// Client errors
	ErrInvalidClient = errors.New("invalid client")
	ErrInvalidGrant  = errors.New("invalid grant")

	// Session errors
	ErrInvalidSessionShape = errors.New("invalid session shape")
	ErrStaleSession        = errors.New("session write superseded by logout")
	ErrStoreClosed         = errors.New("session store closed")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// RateLimitedError is returned while an identifier is locked out. It matches
// ErrRateLimited with errors.Is.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// UserMessage maps an authentication error to text shown on the login form.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrRateLimited):
		if d, ok := RetryAfter(err); ok && d > 0 {
			return fmt.Sprintf("Too many failed attempts. Try again in %s.", humanDuration(d))
		}
		return "Too many failed attempts. Try again later."
	case errors.Is(err, ErrServiceUnavailable):
		return "We could not reach the sign-in service. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Round(time.Second) / time.Second)
		if secs <= 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
