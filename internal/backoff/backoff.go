// Package backoff implements the retry delay policy shared by metadata
// loading and media decoding: 1s, doubling, capped at 30s, reset on success.
package backoff

import (
	"context"
	"sync"
	"time"
)

const (
	InitialDelay = time.Second
	MaxDelay     = 30 * time.Second
)

// Delay returns the wait before the next attempt after the given number of
// consecutive failures. The first retry waits InitialDelay.
func Delay(failures int) time.Duration {
	if failures <= 1 {
		return InitialDelay
	}
	d := InitialDelay
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	return d
}

// Backoff counts consecutive failures. It is safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	failures int
}

// Next records a failure and returns how long to wait before retrying.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	return Delay(b.failures)
}

// Reset clears the failure count after a successful attempt.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Failures returns the number of consecutive failures recorded so far.
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
