// Package publisher turns notification messages into durable broker
// messages on the queue bound to their channel.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/domain"
)

// MaxBulkCount caps a single bulk publish.
const MaxBulkCount = 1000

// Hooks carries optional metric callbacks.
type Hooks struct {
	OnPublished func(queue string)
	OnFailed    func(queue string)
}

// Publisher publishes messages with Attempt 0. It does not own the broker
// client; the caller closes it.
type Publisher struct {
	client    broker.Client
	topology  broker.Topology
	bulkDelay time.Duration
	logger    *zap.Logger
	hooks     Hooks
	now       func() time.Time
}

// New returns a Publisher on client. bulkDelay paces PublishBulk.
func New(client broker.Client, bulkDelay time.Duration, logger *zap.Logger, hooks Hooks) *Publisher {
	if hooks.OnPublished == nil {
		hooks.OnPublished = func(string) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func(string) {}
	}
	return &Publisher{
		client:    client,
		topology:  broker.NewTopology(domain.QueueNames()...),
		bulkDelay: bulkDelay,
		logger:    logger,
		hooks:     hooks,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Publish declares the target queue and enqueues exactly one persistent
// message. The queue is a pure function of the message's channel.
func (p *Publisher) Publish(ctx context.Context, msg domain.Message) error {
	ch := msg.Channel()
	if !ch.IsValid() {
		return domain.ErrUnknownChannel
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	queue := ch.Queue()
	env := domain.NewEnvelope(msg)

	body, err := json.Marshal(env.Message)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", ch, err)
	}

	if err := p.client.DeclareQueue(ctx, p.topology.Spec(queue)); err != nil {
		p.hooks.OnFailed(queue)
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	id := uuid.NewString()
	err = p.client.Publish(ctx, queue, broker.Publishing{
		MessageID: id,
		Body:      body,
		Attempt:   env.Attempt,
		Timestamp: p.now(),
	})
	if err != nil {
		p.hooks.OnFailed(queue)
		return err
	}

	p.hooks.OnPublished(queue)
	p.logger.Debug("message published",
		zap.String("queue", queue),
		zap.String("message_id", id),
		zap.String("reference", domain.Reference(msg)),
	)
	return nil
}

// PublishBulk publishes count near-duplicates of msg, each stamped with a
// sequence suffix and a fresh timestamp, pausing bulkDelay between sends.
// Failed sends are logged and skipped; the joined errors are returned with
// the number that succeeded. Intended for load generation only.
func (p *Publisher) PublishBulk(ctx context.Context, msg domain.Message, count int) (int, error) {
	if count < 1 || count > MaxBulkCount {
		return 0, domain.ErrInvalidCount
	}
	if !msg.Channel().IsValid() {
		return 0, domain.ErrUnknownChannel
	}

	var (
		published int
		errs      []error
	)
	for i := 1; i <= count; i++ {
		if err := p.Publish(ctx, msg.Stamp(i, p.now())); err != nil {
			p.logger.Warn("bulk publish failed",
				zap.Int("seq", i),
				zap.String("queue", msg.Channel().Queue()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("message %d: %w", i, err))
		} else {
			published++
		}

		if i == count {
			break
		}
		select {
		case <-ctx.Done():
			return published, errors.Join(append(errs, ctx.Err())...)
		case <-time.After(p.bulkDelay):
		}
	}

	p.logger.Info("bulk publish finished",
		zap.String("queue", msg.Channel().Queue()),
		zap.Int("requested", count),
		zap.Int("published", published),
	)
	return published, errors.Join(errs...)
}
