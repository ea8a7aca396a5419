// Package store persists small named strings with an expiry. The cart session
// uses it to remember the active cart identifier across restarts.
package store

import (
	"context"
	"sync"
	"time"
)

// Store is a named string store with per-entry expiry.
// Expired entries read as absent.
type Store interface {
	Get(ctx context.Context, name string) (value string, ok bool, err error)
	Set(ctx context.Context, name, value string, ttl time.Duration) error
	Remove(ctx context.Context, name string) error
}

// Memory is an in-process Store. The zero value is not usable; use NewMemory.
type Memory struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// WithClock overrides the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, name)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, name, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = entry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

var _ Store = (*Memory)(nil)
