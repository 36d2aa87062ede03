package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cakeshop/order-notifications/internal/domain"
)

type pgOutcomeRepository struct {
	pool *pgxpool.Pool
}

// NewPgOutcomeRepository returns an OutcomeRepository backed by PostgreSQL.
func NewPgOutcomeRepository(pool *pgxpool.Pool) OutcomeRepository {
	return &pgOutcomeRepository{pool: pool}
}

func (r *pgOutcomeRepository) Record(ctx context.Context, o *domain.Outcome) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_outcomes
			(id, message_id, queue, reference, status, attempts, last_error, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.MessageID, o.Queue, o.Reference, o.Status, o.Attempts, o.LastError, o.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (r *pgOutcomeRepository) List(ctx context.Context, f domain.OutcomeFilter) ([]*domain.Outcome, error) {
	where, args := buildOutcomeWhere(f)

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, message_id, queue, reference, status, attempts, last_error, recorded_at
		FROM notification_outcomes%s
		ORDER BY recorded_at DESC
		LIMIT $%d`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*domain.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (r *pgOutcomeRepository) Count(ctx context.Context, queue string) (map[domain.OutcomeStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM notification_outcomes`
	var args []any
	if queue != "" {
		query += ` WHERE queue = $1`
		args = append(args, queue)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OutcomeStatus]int)
	for rows.Next() {
		var (
			status domain.OutcomeStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanOutcome(row pgx.Row) (*domain.Outcome, error) {
	var o domain.Outcome
	err := row.Scan(
		&o.ID, &o.MessageID, &o.Queue, &o.Reference,
		&o.Status, &o.Attempts, &o.LastError, &o.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan outcome: %w", err)
	}
	return &o, nil
}

func buildOutcomeWhere(f domain.OutcomeFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.Status != nil {
		args = append(args, *f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Queue != nil {
		args = append(args, *f.Queue)
		conditions = append(conditions, fmt.Sprintf("queue = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
