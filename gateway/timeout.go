package gateway

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
)

// callWithTimeout bounds fn by timeout even when fn ignores ctx. A timeout or
// a panic inside fn is reported as ErrServiceUnavailable.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: authority panicked: %v", apperrors.ErrServiceUnavailable, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, ctx.Err())
	}
}
