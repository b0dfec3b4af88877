// Package dedup suppresses repeated tag reads inside a buffer window.
//
// The Cache keeps the last accepted time per tag ID. A read is accepted when
// the tag has never been accepted, or when at least the buffer window has
// passed since its last acceptance. Rejected reads leave the stored time
// untouched, so every accepted read starts a fresh window from itself.
//
// Entries are kept for the life of the process unless a sweeper is started
// with StartSweeper, which drops entries that can no longer suppress a read.
package dedup

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the buffer window used when none is configured.
const DefaultWindow = 5 * time.Second

// Entry is the stored state for a single tag ID.
type Entry struct {
	TagID      string    `json:"tag_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	SourceIP   string    `json:"source_ip"`
	Accepted   int64     `json:"accepted"`
}

// Cache is the identity deduplicator. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*Entry

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a cache with the given buffer window. A non-positive window
// falls back to DefaultWindow.
func New(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{
		window:  window,
		entries: make(map[string]*Entry),
	}
}

// Window returns the configured buffer window.
func (c *Cache) Window() time.Duration {
	return c.window
}

// Accept reports whether the read is new. On acceptance the tag's last-seen
// time and source IP are updated; duplicates change nothing.
func (c *Cache) Accept(tagID, sourceIP string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[tagID]
	if ok && now.Sub(e.LastSeenAt) < c.window {
		return false
	}
	if !ok {
		e = &Entry{TagID: tagID}
		c.entries[tagID] = e
	}
	e.LastSeenAt = now
	e.SourceIP = sourceIP
	e.Accepted++
	return true
}

// Lookup returns a copy of the entry for tagID.
func (c *Cache) Lookup(tagID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tagID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of tracked tag IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes entries whose window has fully elapsed at now and returns how
// many were removed. Removed entries would have been accepted anyway.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if now.Sub(e.LastSeenAt) >= c.window {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper launches a background goroutine that calls Sweep every
// interval. Call Stop to shut it down.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 || c.sweepStop != nil {
		return
	}
	c.sweepStop = make(chan struct{})
	c.sweepDone = make(chan struct{})

	go c.sweepLoop(interval, c.sweepStop, c.sweepDone)
	slog.Info("dedup: sweeper started", "interval", interval, "window", c.window)
}

// Stop shuts down the sweeper goroutine, if running.
func (c *Cache) Stop() {
	if c.sweepStop != nil {
		close(c.sweepStop)
		<-c.sweepDone
		c.sweepStop = nil
		c.sweepDone = nil
	}
}

func (c *Cache) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if n := c.Sweep(now); n > 0 {
				slog.Debug("dedup: swept expired entries", "removed", n, "remaining", c.Len())
			}
		}
	}
}
