// Package wait provides the bounded polling primitive every browser-driven
// component uses instead of ad hoc sleep loops.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a condition did not hold within its bound.
var ErrTimeout = errors.New("timed out waiting for condition")

// DefaultInterval is used when Until is called with a non-positive interval.
const DefaultInterval = 250 * time.Millisecond

// Condition reports whether the awaited state has been reached. An error is
// treated like false: polling continues and the last error is reported on
// timeout.
type Condition func() (bool, error)

// Until polls cond every interval until it returns true, the timeout
// elapses, or ctx is cancelled. The condition is always evaluated at least
// once, even with a zero timeout.
func Until(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	deadline := time.Now().Add(timeout)
	var lastErr error

	for {
		ok, err := cond()
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		pause := interval
		if pause > remaining {
			pause = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Sleep pauses for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// IsTimeout reports whether err came from an expired wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
