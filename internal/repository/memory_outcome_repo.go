package repository

import (
	"context"
	"sync"

	"github.com/cakeshop/order-notifications/internal/domain"
)

// MemoryOutcomeRepository is an in-memory OutcomeRepository. It keeps at
// most capacity outcomes, dropping the oldest.
type MemoryOutcomeRepository struct {
	mu       sync.RWMutex
	outcomes []*domain.Outcome
	capacity int

	// RecordErr is returned by Record when set; tests use it to simulate
	// a failing store.
	RecordErr error
}

func NewMemoryOutcomeRepository(capacity int) *MemoryOutcomeRepository {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryOutcomeRepository{capacity: capacity}
}

func (m *MemoryOutcomeRepository) Record(_ context.Context, o *domain.Outcome) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *o
	m.outcomes = append(m.outcomes, &clone)
	if over := len(m.outcomes) - m.capacity; over > 0 {
		m.outcomes = m.outcomes[over:]
	}
	return nil
}

func (m *MemoryOutcomeRepository) List(_ context.Context, f domain.OutcomeFilter) ([]*domain.Outcome, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Outcome
	for i := len(m.outcomes) - 1; i >= 0 && len(out) < limit; i-- {
		o := m.outcomes[i]
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.Queue != nil && o.Queue != *f.Queue {
			continue
		}
		clone := *o
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MemoryOutcomeRepository) Count(_ context.Context, queue string) (map[domain.OutcomeStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.OutcomeStatus]int)
	for _, o := range m.outcomes {
		if queue == "" || o.Queue == queue {
			counts[o.Status]++
		}
	}
	return counts, nil
}

// compile-time check that MemoryOutcomeRepository implements OutcomeRepository
var _ OutcomeRepository = (*MemoryOutcomeRepository)(nil)
