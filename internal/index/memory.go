package index

import (
	"context"
	"sync"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

// MemoryIndex keeps entries in a map. It backs tests and offline runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]model.IndexEntry
}

// NewMemoryIndex returns an index that does not exist until EnsureIndex is
// called.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) EnsureIndex(ctx context.Context, dim int, recreate bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries != nil && m.dim == dim {
		return nil
	}
	if m.entries != nil && !recreate {
		return existingMismatch(m.dim, dim)
	}
	m.dim = dim
	m.entries = make(map[string]model.IndexEntry)
	return nil
}

func (m *MemoryIndex) Dimension(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entries == nil {
		return 0, ErrIndexNotFound
	}
	return m.dim, nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		return ErrIndexNotFound
	}
	if err := validateEntries(entries, m.dim); err != nil {
		return err
	}
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ID] = e
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entries == nil {
		return nil, ErrIndexNotFound
	}
	if err := checkQuery(vector, m.dim); err != nil {
		return nil, err
	}
	candidates := make([]model.IndexEntry, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, e)
	}
	return rankByCosine(vector, candidates, topK), nil
}

// Len returns the number of stored entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Ping(ctx context.Context) error { return nil }

func (m *MemoryIndex) Close() error { return nil }
