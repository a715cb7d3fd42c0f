package backoff

import "time"

// Timer produces the channel a retry waits on. Swapping it out lets tests
// observe retry delays without sleeping.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

// RealTimer waits on the wall clock.
type RealTimer struct{}

// After delegates to time.After.
func (RealTimer) After(d time.Duration) <-chan time.Time { return time.After(d) }
