package dedup

import (
	"container/list"
	"sync"
)

// memoryTier is the in-process cache of accepted ids, bounded by a total
// id-count budget across all cached dates. Eviction is insertion-ordered
// by dateKey: writes refresh recency, reads do not, and the dateKey being
// written is never evicted. Callers hold no references into the cache;
// get returns copies.
type memoryTier struct {
	mu      sync.Mutex
	budget  int
	total   int
	order   *list.List // front = most recently inserted dateKey
	entries map[string]*list.Element
}

type memEntry struct {
	dateKey string
	ids     map[string]struct{}
}

func newMemoryTier(budget int) *memoryTier {
	return &memoryTier{
		budget:  budget,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (t *memoryTier) get(dateKey string) (map[string]struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[dateKey]
	if !ok {
		return nil, false
	}
	return copyIDs(elem.Value.(*memEntry).ids), true
}

// set replaces the cached set for dateKey. Empty sets are not cached so
// fresh dates cannot crowd the entry table.
func (t *memoryTier) set(dateKey string, ids map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(ids) == 0 {
		if elem, ok := t.entries[dateKey]; ok {
			t.remove(elem)
		}
		return
	}

	if elem, ok := t.entries[dateKey]; ok {
		entry := elem.Value.(*memEntry)
		t.total -= len(entry.ids)
		entry.ids = copyIDs(ids)
		t.total += len(entry.ids)
		t.order.MoveToFront(elem)
		t.evict(elem)
		return
	}

	entry := &memEntry{dateKey: dateKey, ids: copyIDs(ids)}
	elem := t.order.PushFront(entry)
	t.entries[dateKey] = elem
	t.total += len(entry.ids)
	t.evict(elem)
}

// merge unions ids into the cached set for dateKey, creating it if needed.
func (t *memoryTier) merge(dateKey string, ids map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	elem, ok := t.entries[dateKey]
	if !ok {
		entry := &memEntry{dateKey: dateKey, ids: copyIDs(ids)}
		elem = t.order.PushFront(entry)
		t.entries[dateKey] = elem
		t.total += len(entry.ids)
		t.evict(elem)
		return
	}

	entry := elem.Value.(*memEntry)
	for id := range ids {
		if _, exists := entry.ids[id]; !exists {
			entry.ids[id] = struct{}{}
			t.total++
		}
	}
	t.order.MoveToFront(elem)
	t.evict(elem)
}

// removeOlderThan drops cached dates strictly older than cutoffKey and
// reports how many were removed.
func (t *memoryTier) removeOlderThan(cutoffKey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, elem := range t.entries {
		if key < cutoffKey {
			t.remove(elem)
			removed++
		}
	}
	return removed
}

// evict trims least-recently-inserted dates until the id budget holds,
// never touching keep (the entry just written). A single date larger than
// the whole budget therefore stays cached alone. Caller holds the lock.
func (t *memoryTier) evict(keep *list.Element) {
	for t.total > t.budget {
		back := t.order.Back()
		if back == nil || back == keep {
			return
		}
		t.remove(back)
	}
}

// remove unlinks an entry. Caller holds the lock.
func (t *memoryTier) remove(elem *list.Element) {
	entry := t.order.Remove(elem).(*memEntry)
	delete(t.entries, entry.dateKey)
	t.total -= len(entry.ids)
}

func (t *memoryTier) stats() (dates, ids int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries), t.total
}

func copyIDs(ids map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for id := range ids {
		out[id] = struct{}{}
	}
	return out
}
