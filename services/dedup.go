package services

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DedupSet remembers inbound message ids for a short window. The feed delivers at
// least once and replays on reconnect; anything seen inside the window is dropped.
type DedupSet struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	window time.Duration
	seen   map[string]time.Time
}

func NewDedupSet(clock clockwork.Clock, window time.Duration) *DedupSet {
	return &DedupSet{clock: clock, window: window, seen: make(map[string]time.Time)}
}

// Seen records id and reports whether it was already recorded within the window.
// Empty ids are never deduplicated.
func (d *DedupSet) Seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[id] = now
	return false
}

// Sweep forgets ids older than the window and returns how many were dropped.
func (d *DedupSet) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	n := 0
	for id, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, id)
			n++
		}
	}
	return n
}

// SetWindow changes the retention window.
func (d *DedupSet) SetWindow(window time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = window
}

// Len is the number of remembered ids.
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
