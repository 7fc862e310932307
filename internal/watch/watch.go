package watch

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Until when the condition never held.
var ErrTimeout = errors.New("timeout")

// Until polls check every interval until it reports true, returns an error,
// the timeout elapses or ctx is cancelled. check runs once immediately.
func Until(ctx context.Context, interval, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	if ok, err := check(ctx); err != nil || ok {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timeoutCh:
			return ErrTimeout

		case <-ticker.C:
			ok, err := check(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}
