package kv

import (
	"context"
	"sync"
	"time"

	"github.com/Travelintrips/travelpage-sub004/internal/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the tab-scoped tier. It lives as long as its owner and expires
// keys lazily against the injected clock.
type Memory struct {
	mu      sync.Mutex
	clk     clock.Clock
	entries map[string]memoryEntry
}

func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clk:     clk,
		entries: make(map[string]memoryEntry),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.clk.Now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = m.clk.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}
