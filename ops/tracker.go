package ops

import (
	"sync"
)

// Tracker counts in-flight work per key so a caller can show an app as
// "starting" for as long as any start-like operation on it is running.
type Tracker struct {
	mu       sync.Mutex
	inflight map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{inflight: make(map[string]int)}
}

// While runs fn with key counted as in flight.
func (t *Tracker) While(key string, fn func() error) error {
	t.mu.Lock()
	t.inflight[key]++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.inflight[key]--; t.inflight[key] <= 0 {
			delete(t.inflight, key)
		}
		t.mu.Unlock()
	}()
	return fn()
}

func (t *Tracker) InFlight(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[key]
}

// IsBusy reports whether anything is in flight for key.
func (t *Tracker) IsBusy(key string) bool {
	return t.InFlight(key) > 0
}
