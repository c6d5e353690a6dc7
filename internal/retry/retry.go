// Package retry runs an operation a bounded number of times with a fixed delay between attempts.
package retry

import (
	"context"
	"time"
)

// Policy is a bounded, fixed-delay retry policy.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Sleep waits between attempts. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fixed returns a policy with the given bound and delay.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

// Do calls op until it succeeds, the attempts are used up or ctx is done.
// It returns the number of attempts made and the last error.
// op receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(ctx, i); err == nil {
			return i, nil
		}
		if i == attempts {
			return i, err
		}
		if serr := p.sleep(ctx); serr != nil {
			return i, err
		}
	}
	return attempts, err
}

func (p Policy) sleep(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Delay)
	}
	return SleepContext(ctx, p.Delay)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoWait is a sleeper that never blocks. Useful in tests.
func NoWait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
