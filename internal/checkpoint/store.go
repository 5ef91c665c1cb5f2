package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/makeasinger/quizgen/internal/metrics"
)

// Summary lists completed unit ids
type Summary struct {
	CompletedCount int      `json:"completedCount"`
	UnitIDs        []string `json:"unitIds"`
}

// Store is a job's view of the checkpoint log: a snapshot loaded once at
// open, extended by the job's own writes. One writer per store.
type Store struct {
	backend Backend
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
}

// Open loads every entry from the backend
func Open(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{
		backend: backend,
		now:     time.Now,
		entries: make(map[string]Entry),
	}

	entries, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints from %s: %w", backend.Name(), err)
	}
	for _, e := range entries {
		if _, ok := s.entries[e.UnitID]; !ok {
			s.entries[e.UnitID] = e
		}
	}
	return s, nil
}

// IsComplete reports whether a unit has a checkpoint entry
func (s *Store) IsComplete(unitID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[unitID]
	return ok
}

// Payload returns the stored questions for a completed unit
func (s *Store) Payload(unitID string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[unitID]
	return e.Payload, ok
}

// RecordComplete appends an entry and only then marks the unit complete.
// Recording an id that is already complete is a no-op.
func (s *Store) RecordComplete(ctx context.Context, unitID string, payload []byte) error {
	if s.IsComplete(unitID) {
		return nil
	}

	e := Entry{
		UnitID:      unitID,
		Status:      StatusComplete,
		Payload:     json.RawMessage(payload),
		CompletedAt: s.now().UTC(),
	}
	if err := s.backend.Append(ctx, e); err != nil {
		metrics.CheckpointWrites.WithLabelValues(s.backend.Name(), "error").Inc()
		return fmt.Errorf("failed to append checkpoint %s: %w", unitID, err)
	}
	metrics.CheckpointWrites.WithLabelValues(s.backend.Name(), "ok").Inc()

	s.mu.Lock()
	s.entries[unitID] = e
	s.mu.Unlock()
	return nil
}

// LoadAll re-reads the backend, including entries written by other jobs
func (s *Store) LoadAll(ctx context.Context) (map[string]Entry, error) {
	entries, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, ok := out[e.UnitID]; !ok {
			out[e.UnitID] = e
		}
	}
	return out, nil
}

// Summary describes the store's snapshot
func (s *Store) Summary() Summary {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return Summary{CompletedCount: len(ids), UnitIDs: ids}
}

// SavePartial writes the in-memory pool for a scope
func (s *Store) SavePartial(ctx context.Context, key string, snapshot []byte) error {
	if err := s.backend.SavePartial(ctx, key, snapshot); err != nil {
		return fmt.Errorf("failed to save partial %s: %w", key, err)
	}
	return nil
}

// LoadPartial reads the last pool written for a scope
func (s *Store) LoadPartial(ctx context.Context, key string) ([]byte, error) {
	return s.backend.LoadPartial(ctx, key)
}

// Summarize reads a backend directly without building a Store
func Summarize(ctx context.Context, backend Backend) (Summary, error) {
	s, err := Open(ctx, backend)
	if err != nil {
		return Summary{}, err
	}
	return s.Summary(), nil
}
