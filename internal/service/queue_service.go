package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/repository"
)

// MaxReplay caps the number of dead letters moved by one replay call.
const MaxReplay = 500

// QueueDepth is the ready-message count of one queue.
type QueueDepth struct {
	Name    string `json:"name"`
	Channel string `json:"channel,omitempty"`
	Depth   int    `json:"depth"`
}

// ReplayResult reports what a dead-letter replay did.
type ReplayResult struct {
	Replayed int            `json:"replayed"`
	Skipped  int            `json:"skipped"`
	ByQueue  map[string]int `json:"by_queue"`
}

// QueueService backs the operations endpoints: queue depths, the outcome
// log and replay of the dead-letter queue. HTTP handlers depend on this
// service, not on the broker or the repository directly.
type QueueService struct {
	client   broker.Client
	outcomes repository.OutcomeRepository
	topology broker.Topology
	logger   *zap.Logger
}

// NewQueueService reads depths from client and outcomes from the store.
func NewQueueService(client broker.Client, outcomes repository.OutcomeRepository, logger *zap.Logger) *QueueService {
	return &QueueService{
		client:   client,
		outcomes: outcomes,
		topology: broker.NewTopology(domain.QueueNames()...),
		logger:   logger,
	}
}

// Depths returns the depth of every work queue followed by the dead-letter
// queue.
func (s *QueueService) Depths(ctx context.Context) ([]QueueDepth, error) {
	var out []QueueDepth
	for _, q := range s.topology.AllQueues() {
		n, err := s.client.QueueDepth(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("queue depth %s: %w", q, err)
		}
		d := QueueDepth{Name: q, Depth: n}
		if ch, err := domain.ChannelForQueue(q); err == nil {
			d.Channel = string(ch)
		}
		out = append(out, d)
	}
	return out, nil
}

// Outcomes lists recorded outcomes and the per-status totals for the same
// queue scope.
func (s *QueueService) Outcomes(ctx context.Context, f domain.OutcomeFilter) ([]*domain.Outcome, map[domain.OutcomeStatus]int, error) {
	if f.Status != nil && !f.Status.IsValid() {
		return nil, nil, domain.ErrInvalidStatus
	}
	queue := ""
	if f.Queue != nil {
		if _, err := domain.ChannelForQueue(*f.Queue); err != nil {
			return nil, nil, domain.ErrUnknownQueue
		}
		queue = *f.Queue
	}
	if f.Limit < 0 || f.Limit > 500 {
		return nil, nil, domain.ErrInvalidLimit
	}

	list, err := s.outcomes.List(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("list outcomes: %w", err)
	}
	counts, err := s.outcomes.Count(ctx, queue)
	if err != nil {
		return nil, nil, fmt.Errorf("count outcomes: %w", err)
	}
	return list, counts, nil
}

// ReplayDeadLetters moves up to limit messages from the dead-letter queue
// back to the queue they died on, with the retry count reset to 0.
// Messages whose origin is unknown stay in the dead-letter queue.
func (s *QueueService) ReplayDeadLetters(ctx context.Context, limit int) (ReplayResult, error) {
	if limit < 1 || limit > MaxReplay {
		return ReplayResult{}, domain.ErrInvalidLimit
	}

	res := ReplayResult{ByQueue: make(map[string]int)}
	var held []broker.Delivery
	defer func() {
		// Unroutable messages are held unacked during the loop so Get does
		// not return them again; put them back at the end.
		for _, d := range held {
			if err := d.Requeue(); err != nil {
				s.logger.Error("requeue dead letter failed", zap.String("message_id", d.MessageID), zap.Error(err))
			}
		}
	}()

	for res.Replayed+res.Skipped < limit {
		d, ok, err := s.client.Get(ctx, s.topology.DeadLetterQueue)
		if err != nil {
			return res, fmt.Errorf("read dead-letter queue: %w", err)
		}
		if !ok {
			break
		}

		origin := d.DeadLetteredFrom
		if _, err := domain.ChannelForQueue(origin); err != nil {
			s.logger.Warn("dead letter has no known origin queue, leaving it",
				zap.String("message_id", d.MessageID),
				zap.String("origin", origin),
			)
			held = append(held, d)
			res.Skipped++
			continue
		}

		err = s.client.Publish(ctx, origin, broker.Publishing{
			MessageID: d.MessageID,
			Body:      d.Body,
		})
		if err != nil {
			held = append(held, d)
			return res, fmt.Errorf("republish to %s: %w", origin, err)
		}
		if err := d.Ack(); err != nil {
			s.logger.Error("ack replayed dead letter failed", zap.String("message_id", d.MessageID), zap.Error(err))
		}
		res.Replayed++
		res.ByQueue[origin]++
	}

	if res.Replayed > 0 {
		s.logger.Info("dead letters replayed", zap.Int("replayed", res.Replayed), zap.Int("skipped", res.Skipped))
	}
	return res, nil
}
