package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn with a derived deadline. The function runs in its
// own goroutine so a callee that ignores its context cannot wedge the
// caller; when the deadline fires the goroutine is abandoned and a wrapped
// context.DeadlineExceeded is returned. A non-positive timeout means no
// bound.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- fn(bounded)
	}()

	select {
	case err := <-errc:
		return err
	case <-bounded.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}
