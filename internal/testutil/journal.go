package testutil

import (
	"fmt"
	"sync"
)

// Journal is an ordered, concurrency safe log of calls. Actions and gateways
// built by this package write into a shared Journal so tests can assert the
// relative order of session transfers and step actions.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal { return &Journal{} }

// Add appends a formatted entry.
func (j *Journal) Add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the entries in order.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// Index returns the position of the first entry equal to e, or -1.
func (j *Journal) Index(e string) int {
	for i, got := range j.Entries() {
		if got == e {
			return i
		}
	}
	return -1
}
