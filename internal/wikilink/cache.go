package wikilink

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// LineCache maps byte offsets in note content to 1-based line numbers. It
// keeps the line start table of recently seen notes, bounded by size and
// age. Entries are evicted when the cache is full, when they expire, or on
// an explicit Evict.
type LineCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	now     func() time.Time
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

type lineEntry struct {
	noteID  string
	length  int
	starts  []int
	expires time.Time
}

// NewLineCache creates a cache holding at most max notes for ttl each.
func NewLineCache(max int, ttl time.Duration) *LineCache {
	if max <= 0 {
		max = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LineCache{
		max:     max,
		ttl:     ttl,
		now:     time.Now,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Line returns the line number of offset within content of noteID.
func (c *LineCache) Line(noteID, content string, offset int) int {
	starts := c.starts(noteID, content)
	// Index of the last line start <= offset.
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	return i
}

func (c *LineCache) starts(noteID, content string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[noteID]; ok {
		e := el.Value.(*lineEntry)
		if now.Before(e.expires) && e.length == len(content) {
			c.order.MoveToFront(el)
			return e.starts
		}
		c.removeLocked(el)
	}

	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	el := c.order.PushFront(&lineEntry{noteID: noteID, length: len(content), starts: starts, expires: now.Add(c.ttl)})
	c.entries[noteID] = el
	for c.order.Len() > c.max {
		c.removeLocked(c.order.Back())
	}
	return starts
}

// Evict drops noteID from the cache.
func (c *LineCache) Evict(noteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[noteID]; ok {
		c.removeLocked(el)
	}
}

// EvictExpired drops every expired entry and returns how many were removed.
func (c *LineCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*lineEntry).expires) {
			c.removeLocked(el)
			n++
		}
		el = prev
	}
	return n
}

// Len returns the number of cached notes.
func (c *LineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LineCache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*lineEntry).noteID)
}
