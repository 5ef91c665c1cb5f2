package checkpoint

import (
	"context"
	"sync"
)

// MemoryBackend keeps checkpoints in process, for development and tests
type MemoryBackend struct {
	mu       sync.Mutex
	entries  []Entry
	seen     map[string]struct{}
	partials map[string][]byte

	// FailAppend makes the next Append calls return this error
	FailAppend error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		seen:     make(map[string]struct{}),
		partials: make(map[string][]byte),
	}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return m.FailAppend
	}
	if _, ok := m.seen[e.UnitID]; ok {
		return nil
	}
	m.seen[e.UnitID] = struct{}{}
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryBackend) Load(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *MemoryBackend) SavePartial(_ context.Context, key string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partials[key] = append([]byte(nil), snapshot...)
	return nil
}

func (m *MemoryBackend) LoadPartial(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.partials[key]
	if !ok {
		return nil, ErrPartialNotFound
	}
	return append([]byte(nil), b...), nil
}

// Appends returns how many entries were stored
func (m *MemoryBackend) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryBackend) Close() error { return nil }
