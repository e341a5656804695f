package consolidate

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rcliao/glucomem/internal/store"
)

// retrier re-runs a storage write on transient (lock contention) failures.
type retrier struct {
	retries     int
	baseBackoff time.Duration
	maxInterval time.Duration
	transient   func(error) bool
}

func newRetrier(retries int) retrier {
	return retrier{
		retries:     retries,
		baseBackoff: 25 * time.Millisecond,
		maxInterval: 500 * time.Millisecond,
		transient:   store.IsTransient,
	}
}

// do runs fn until it succeeds, fails permanently, or retries run out.
// A done ctx ends the wait between attempts; it never interrupts an attempt.
// The reconciler and detector pass a context that is never done, so a busy
// write keeps retrying even after the turn is cancelled.
func (r retrier) do(ctx context.Context, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.baseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = r.maxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	attempts := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if r.transient == nil || !r.transient(err) || attempts >= r.retries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		wait := exp.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		attempts++
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}
