package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count int64
	reset time.Time
}

// MemoryCounter is a bounded in-process Counter for single-instance
// deployments. Expired entries are swept lazily; there is no background timer.
type MemoryCounter struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	maxKeys   int
	nextSweep time.Time
	now       func() time.Time
}

// NewMemoryCounter builds a counter tracking at most maxKeys keys.
func NewMemoryCounter(maxKeys int) *MemoryCounter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryCounter{
		entries: make(map[string]*memoryEntry),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// Allow implements Counter. When the map is full and nothing has expired the
// request is admitted untracked.
func (m *MemoryCounter) Allow(_ context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := m.now()
	if max <= 0 || window <= 0 {
		return disabled(now, window, max), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !now.Before(m.nextSweep) {
		m.sweepLocked(now)
		m.nextSweep = now.Add(window)
	}

	entry, ok := m.entries[key]
	if ok && !now.Before(entry.reset) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		if len(m.entries) >= m.maxKeys {
			m.sweepLocked(now)
		}
		if len(m.entries) >= m.maxKeys {
			return untracked(now, window, max), nil
		}
		entry = &memoryEntry{reset: now.Add(window)}
		m.entries[key] = entry
	}
	entry.count++
	return decide(entry.count, max, entry.reset), nil
}

// Len reports the number of tracked keys.
func (m *MemoryCounter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCounter) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.reset) {
			delete(m.entries, k)
		}
	}
}
