package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type Memory struct {
	mu      sync.RWMutex
	results []Result
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SaveResult(_ context.Context, res Result) (Result, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.Standings = slices.Clone(res.Standings)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return res, nil
}

func (m *Memory) GetResult(_ context.Context, id uuid.UUID) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.results {
		if r.ID == id {
			return r, nil
		}
	}
	return Result{}, ErrNotFound
}

// RecentResults returns newest first.
func (m *Memory) RecentResults(_ context.Context, limit int) ([]Result, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	out := slices.Clone(m.results)
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Result) int {
		return b.EndedAt.Compare(a.EndedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
