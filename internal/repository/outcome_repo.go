package repository

import (
	"context"

	"github.com/cakeshop/order-notifications/internal/domain"
)

// DefaultListLimit applies when a filter has no positive limit.
const DefaultListLimit = 50

// OutcomeRepository stores the terminal outcome of every consumed message.
// The pgx implementation is in pg_outcome_repo.go; memory_outcome_repo.go
// serves local runs without a database and the tests.
type OutcomeRepository interface {
	Record(ctx context.Context, o *domain.Outcome) error
	// List returns the most recent outcomes first.
	List(ctx context.Context, filter domain.OutcomeFilter) ([]*domain.Outcome, error)
	// Count returns the number of stored outcomes per status for a queue,
	// or across all queues when queue is empty.
	Count(ctx context.Context, queue string) (map[domain.OutcomeStatus]int, error)
}
