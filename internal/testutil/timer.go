package testutil

import (
	"sync"
	"time"
)

// RecordingTimer is a backoff.Timer that fires immediately and remembers
// every requested delay.
type RecordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

// After records d and returns an already fired channel.
func (t *RecordingTimer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// Delays returns the recorded delays in order.
func (t *RecordingTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

// StalledTimer is a backoff.Timer whose channels never fire.
type StalledTimer struct{}

// After returns a channel that never receives.
func (StalledTimer) After(time.Duration) <-chan time.Time { return nil }
