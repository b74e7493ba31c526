package backoff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		failures int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("failures_%d", tt.failures), func(t *testing.T) {
			if got := Delay(tt.failures); got != tt.expected {
				t.Errorf("Delay(%d) = %v, want %v", tt.failures, got, tt.expected)
			}
		})
	}
}

func TestBackoffNextAndReset(t *testing.T) {
	var b Backoff

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}

	if b.Failures() != len(want) {
		t.Errorf("Failures() = %d, want %d", b.Failures(), len(want))
	}

	b.Reset()
	if got := b.Next(); got != InitialDelay {
		t.Errorf("Next() after Reset = %v, want %v", got, InitialDelay)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly on cancelled context")
	}
}

func TestSleepElapses(t *testing.T) {
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v, want nil", err)
	}
}
