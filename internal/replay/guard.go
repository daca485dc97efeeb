// ABOUTME: Thread-safe TTL guard preventing one-time codes from being accepted twice
// ABOUTME: Bounded by size with O(1) oldest-entry eviction via a linked list

package replay

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// entry stores the acceptance timestamp and list element for a key.
type entry struct {
	timestamp time.Time
	element   *list.Element
}

// Guard tracks recently accepted code identities so that a validated
// one-time code cannot be replayed inside its validity window. Keys are
// kept in insertion order for O(1) eviction when the guard is full.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest key at the front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a guard with the given TTL and maximum size. The TTL
// should cover the full validation window (period times one plus skew
// in both directions); expired entries are swept by a background
// goroutine.
func New(ttl time.Duration, maxSize int) *Guard {
	g := &Guard{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go g.sweep()
	return g
}

// Key builds the guard key for one accepted code: the user plus the
// time step the code matched.
func Key(user string, step uint64) string {
	return fmt.Sprintf("%s:%d", user, step)
}

// CheckAndMark atomically checks whether the key was already accepted
// and marks it if not. Returns true for a replay (reject), false when
// the key is new and now recorded. The combined operation avoids the
// race where two concurrent attempts both pass a lone check.
func (g *Guard) CheckAndMark(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.seen[key]
	if ok && time.Since(e.timestamp) < g.ttl {
		return true
	}

	g.markLocked(key)
	return false
}

// markLocked records a key. Must be called with mu held.
func (g *Guard) markLocked(key string) {
	now := time.Now()

	if e, exists := g.seen[key]; exists {
		e.timestamp = now
		g.order.MoveToBack(e.element)
		return
	}

	if len(g.seen) >= g.maxSize {
		g.evictOldest()
	}

	elem := g.order.PushBack(key)
	g.seen[key] = &entry{timestamp: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (g *Guard) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.seen, key)
}

// sweep periodically removes expired entries until Close.
func (g *Guard) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.runSweep()
		case <-g.done:
			return
		}
	}
}

func (g *Guard) runSweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, e := range g.seen {
		if now.Sub(e.timestamp) > g.ttl {
			g.order.Remove(e.element)
			delete(g.seen, key)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
