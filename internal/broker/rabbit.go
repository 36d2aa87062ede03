package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitClient is an owned AMQP connection. Publishing and topology
// declaration share one mutex-guarded channel; every consumer gets its own
// channel so a protocol error on one queue cannot stall the others.
type RabbitClient struct {
	conn     *amqp.Connection
	prefetch int
	logger   *zap.Logger

	pubMu sync.Mutex
	pubCh *amqp.Channel

	consumersMu sync.Mutex
	consumers   []*amqp.Channel

	closeErrs chan error
	closed    atomic.Bool
}

// Dial connects to RabbitMQ and opens the publishing channel.
func Dial(url string, opts Options, logger *zap.Logger) (*RabbitClient, error) {
	if opts.Heartbeat == 0 {
		opts.Heartbeat = 10 * time.Second
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}

	cfg := amqp.Config{
		Heartbeat:  opts.Heartbeat,
		Properties: amqp.NewConnectionProperties(),
	}
	if opts.ConnectionName != "" {
		cfg.Properties.SetClientConnectionName(opts.ConnectionName)
	}

	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	c := &RabbitClient{
		conn:      conn,
		prefetch:  opts.Prefetch,
		logger:    logger.With(zap.String("component", "rabbitmq")),
		pubCh:     ch,
		closeErrs: make(chan error, 1),
	}

	// Translate the AMQP close notification into a plain error channel.
	amqpClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		defer close(c.closeErrs)
		if amqpErr, ok := <-amqpClosed; ok && amqpErr != nil {
			c.closeErrs <- fmt.Errorf("broker connection lost: %w", amqpErr)
		}
	}()

	return c, nil
}

// withPublishChannel runs fn on the shared channel, reopening it first if a
// previous channel-level error closed it.
func (c *RabbitClient) withPublishChannel(fn func(ch *amqp.Channel) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.pubCh == nil || c.pubCh.IsClosed() {
		ch, err := c.conn.Channel()
		if err != nil {
			return fmt.Errorf("reopen publish channel: %w", err)
		}
		c.pubCh = ch
	}
	return mapAMQPError(fn(c.pubCh))
}

func (c *RabbitClient) DeclareTopology(ctx context.Context, t Topology) error {
	err := c.withPublishChannel(func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange, err)
		}
		if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
		}
		if err := ch.QueueBind(t.DeadLetterQueue, t.DeadLetterRoutingKey, t.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", t.DeadLetterQueue, t.DeadLetterExchange, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, q := range t.Queues {
		if err := c.DeclareQueue(ctx, q); err != nil {
			return err
		}
	}

	c.logger.Info("queue topology declared", zap.Strings("queues", t.AllQueues()))
	return nil
}

func (c *RabbitClient) DeclareQueue(_ context.Context, spec QueueSpec) error {
	return c.withPublishChannel(func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(spec.Name, spec.Durable, false, false, false, queueArgs(spec)); err != nil {
			return fmt.Errorf("declare queue %s: %w", spec.Name, err)
		}
		return nil
	})
}

func (c *RabbitClient) Publish(ctx context.Context, queue string, p Publishing) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	return c.withPublishChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    p.MessageID,
			Timestamp:    p.Timestamp,
			Headers:      headersFor(p.Attempt),
			Body:         p.Body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s: %w", queue, err)
		}
		return nil
	})
}

func (c *RabbitClient) Consume(ctx context.Context, queue, consumerTag string) (<-chan Delivery, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, mapAMQPError(fmt.Errorf("consume %s: %w", queue, err))
	}

	c.consumersMu.Lock()
	c.consumers = append(c.consumers, ch)
	c.consumersMu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				// Stop new deliveries; prefetched but unhandled ones are
				// redelivered by the broker once the channel closes.
				if err := ch.Cancel(consumerTag, false); err != nil && !ch.IsClosed() {
					c.logger.Warn("cancel consumer failed", zap.String("queue", queue), zap.Error(err))
				}
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- fromAMQP(queue, m):
				case <-ctx.Done():
					_ = m.Nack(false, true)
				}
			}
		}
	}()

	return out, nil
}

func (c *RabbitClient) Get(_ context.Context, queue string) (Delivery, bool, error) {
	var (
		d  Delivery
		ok bool
	)
	err := c.withPublishChannel(func(ch *amqp.Channel) error {
		m, found, err := ch.Get(queue, false)
		if err != nil {
			return fmt.Errorf("get from %s: %w", queue, err)
		}
		if found {
			d, ok = fromAMQP(queue, m), true
		}
		return nil
	})
	return d, ok, err
}

// QueueDepth inspects the queue on a throwaway channel: a passive declare
// of a missing queue closes the channel it runs on.
func (c *RabbitClient) QueueDepth(_ context.Context, queue string) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("open inspect channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
			return 0, ErrQueueNotFound
		}
		return 0, fmt.Errorf("inspect %s: %w", queue, err)
	}
	return q.Messages, nil
}

func (c *RabbitClient) NotifyClose() <-chan error { return c.closeErrs }

// Close closes consumer channels, the publish channel and the connection.
func (c *RabbitClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.consumersMu.Lock()
	for _, ch := range c.consumers {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
	}
	c.consumers = nil
	c.consumersMu.Unlock()

	c.pubMu.Lock()
	if c.pubCh != nil && !c.pubCh.IsClosed() {
		_ = c.pubCh.Close()
	}
	c.pubMu.Unlock()

	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close connection: %w", err)
	}
	c.logger.Info("broker connection closed")
	return nil
}

func queueArgs(spec QueueSpec) amqp.Table {
	if spec.DeadLetterExchange == "" {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    spec.DeadLetterExchange,
		"x-dead-letter-routing-key": spec.DeadLetterRoutingKey,
	}
}

func fromAMQP(queue string, m amqp.Delivery) Delivery {
	return Delivery{
		Queue:            queue,
		MessageID:        m.MessageId,
		Body:             m.Body,
		Attempt:          attemptFromHeaders(m.Headers),
		Redelivered:      m.Redelivered,
		Timestamp:        m.Timestamp,
		DeadLetteredFrom: deadLetteredFrom(m.Headers),
		ack:              func() error { return m.Ack(false) },
		nack:             func(requeue bool) error { return m.Nack(false, requeue) },
	}
}

func mapAMQPError(err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, amqpErr.Reason)
	}
	return err
}

// compile-time check that RabbitClient implements Client
var _ Client = (*RabbitClient)(nil)
