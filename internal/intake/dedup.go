package intake

import (
	"sync"
	"time"
)

// DedupWindow is the identity window both intake producers share, per
// spec.md §4.C: (chain, borrower, debt, coll) is deduplicated for 5 minutes.
const DedupWindow = 5 * time.Minute

// Dedup tracks the last-seen time for each candidate identity key and
// reports whether a given key is still inside the dedup window.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDedup builds an empty Dedup tracker.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]time.Time)}
}

// Admit reports whether key should be emitted now: true the first time, or
// once DedupWindow has elapsed since the last admit. As a side effect it
// records now as the key's last-seen time when it admits.
func (d *Dedup) Admit(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.seen[key]
	if ok && now.Sub(last) < DedupWindow {
		return false
	}
	d.seen[key] = now
	return true
}

// Sweep evicts entries older than DedupWindow, bounding map growth for
// long-running processes.
func (d *Dedup) Sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.seen {
		if now.Sub(t) >= DedupWindow {
			delete(d.seen, k)
		}
	}
}
