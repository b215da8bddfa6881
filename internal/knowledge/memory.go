package knowledge

import (
	"context"
	"sync"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// Memory is an in-process Store, grounded in the control plane's
// mutex-guarded-map idiom (store/memory.go): one RWMutex, plain Go
// collections, newest-first ordering on query.
type Memory struct {
	mu         sync.RWMutex
	discoveries map[string]resolvetypes.Discovery
	order       []string // insertion order, oldest first
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{discoveries: make(map[string]resolvetypes.Discovery)}
}

func (m *Memory) Insert(ctx context.Context, d resolvetypes.Discovery) error {
	if d.ID == "" {
		return resolvetypes.NewInvalidArgument("discovery id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.discoveries[d.ID]; exists {
		return resolvetypes.NewInvalidArgument("duplicate discovery id " + d.ID)
	}
	m.discoveries[d.ID] = d
	m.order = append(m.order, d.ID)
	return nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*resolvetypes.Discovery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.discoveries[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) Query(ctx context.Context, f Filter) ([]resolvetypes.Discovery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var matches []resolvetypes.Discovery
	for i := len(m.order) - 1; i >= 0; i-- { // newest-first
		d := m.discoveries[m.order[i]]
		if matchesFilter(d, f) {
			matches = append(matches, d)
		}
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (m *Memory) IncrementReferences(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discoveries[id]
	if !ok {
		return resolvetypes.NewNotFound("discovery " + id + " not found")
	}
	d.ReferenceCount++
	m.discoveries[id] = d
	return nil
}

func (m *Memory) MarkValidated(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discoveries[id]
	if !ok {
		return resolvetypes.NewNotFound("discovery " + id + " not found")
	}
	d.Validated = true // idempotent: repeated calls leave it true
	m.discoveries[id] = d
	return nil
}

func (m *Memory) Statistics(ctx context.Context) (Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tagSet := make(map[string]bool)
	var validated int
	var size int64
	for _, d := range m.discoveries {
		if d.Validated {
			validated++
		}
		for _, t := range d.Tags {
			tagSet[t] = true
		}
		size += int64(len(d.Content))
	}
	return Statistics{
		Total:     len(m.discoveries),
		Validated: validated,
		Tags:      len(tagSet),
		SizeBytes: size,
	}, nil
}

var _ Store = (*Memory)(nil)
