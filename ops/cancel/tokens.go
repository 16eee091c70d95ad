package cancel

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Tokens hands out tokens for one resource (typically an app) and lets a
// newer request supersede older in-flight ones.
type Tokens struct {
	mu   sync.Mutex
	next uint64
	live map[uint64]*Token
}

func NewTokens() *Tokens {
	return &Tokens{live: make(map[uint64]*Token)}
}

// Create returns a fresh token with an id greater than any handed out before.
func (ts *Tokens) Create() *Token {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.next++
	t := New()
	t.id = ts.next
	ts.live[t.id] = t
	return t
}

// CancelAll cancels every outstanding token.
func (ts *Tokens) CancelAll() {
	ts.cancelWhere(func(uint64) bool { return true })
}

// CancelAllBefore cancels every outstanding token created before t.
// t itself and anything newer are left alone.
func (ts *Tokens) CancelAllBefore(t *Token) {
	ts.cancelWhere(func(id uint64) bool { return id < t.id })
}

func (ts *Tokens) cancelWhere(match func(uint64) bool) {
	ts.mu.Lock()
	var victims []*Token
	for id, t := range ts.live {
		if match(id) {
			victims = append(victims, t)
			delete(ts.live, id)
		}
	}
	ts.mu.Unlock()

	if len(victims) > 0 {
		log.Debugf("Cancelling %d superseded tokens", len(victims))
	}
	for _, t := range victims {
		t.Cancel()
	}
}

// Release forgets a token whose operation has finished. It is not cancelled.
func (ts *Tokens) Release(t *Token) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.live, t.id)
}

// Len is the number of outstanding tokens.
func (ts *Tokens) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.live)
}
