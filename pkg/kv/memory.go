package kv

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is a concurrency-safe in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memEntry

	// Now is used for expiry checks; tests may replace it.
	Now func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry), Now: time.Now}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.data[key.String()]
	m.mu.RUnlock()
	if !ok || e.expired(m.Now()) {
		return nil, ErrNotFound
	}
	return slices.Clone(e.value), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	e := memEntry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expires = m.Now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key.String()] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.data, key.String())
	m.mu.Unlock()
	return nil
}

func (m *Memory) Scan(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := scanPrefix(prefix)
	now := m.Now()

	m.mu.RLock()
	var entries []Entry
	for k, e := range m.data {
		if strings.HasPrefix(k, p) && !e.expired(now) {
			entries = append(entries, Entry{Key: ParseKey(k), Value: slices.Clone(e.value)})
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Key.String(), b.Key.String())
	})

	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) DeletePrefix(_ context.Context, prefix Key) error {
	p := scanPrefix(prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
