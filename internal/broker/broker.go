// Package broker owns the connection to the message broker: topology
// declaration, persistent publishing and manual-ack consumption.
//
// Two implementations exist. RabbitClient talks AMQP 0-9-1 to RabbitMQ;
// MemoryBroker keeps the same semantics in process and backs local runs
// (RABBITMQ_URL=memory://) and tests.
package broker

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/domain"
)

var (
	ErrClosed             = errors.New("broker client is closed")
	ErrPreconditionFailed = errors.New("queue or exchange already declared with different arguments")
	ErrQueueNotFound      = errors.New("queue not declared")
	ErrAlreadyAcked       = errors.New("delivery already acknowledged")
)

// QueueSpec describes one durable queue and its dead-letter routing.
type QueueSpec struct {
	Name                 string
	Durable              bool
	DeadLetterExchange   string
	DeadLetterRoutingKey string
}

// Topology is the full set of queues plus the shared dead-letter exchange and
// the overflow queue bound to it.
type Topology struct {
	Queues               []QueueSpec
	DeadLetterExchange   string
	DeadLetterRoutingKey string
	DeadLetterQueue      string
}

// NewTopology declares every queue durable and dead-lettered to the shared
// "dlx" exchange with routing key "failed".
func NewTopology(queues ...string) Topology {
	t := Topology{
		DeadLetterExchange:   domain.DeadLetterExchange,
		DeadLetterRoutingKey: domain.DeadLetterRoutingKey,
		DeadLetterQueue:      domain.DeadLetterQueue,
	}
	for _, q := range queues {
		t.Queues = append(t.Queues, t.Spec(q))
	}
	return t
}

// Spec returns the declaration used for a work queue in this topology.
func (t Topology) Spec(queue string) QueueSpec {
	return QueueSpec{
		Name:                 queue,
		Durable:              true,
		DeadLetterExchange:   t.DeadLetterExchange,
		DeadLetterRoutingKey: t.DeadLetterRoutingKey,
	}
}

// AllQueues lists the work queues followed by the dead-letter queue.
func (t Topology) AllQueues() []string {
	names := make([]string, 0, len(t.Queues)+1)
	for _, q := range t.Queues {
		names = append(names, q.Name)
	}
	return append(names, t.DeadLetterQueue)
}

// Publishing is an outbound message. Attempt is written to the
// x-retry-count header.
type Publishing struct {
	MessageID string
	Body      []byte
	Attempt   int
	Timestamp time.Time
}

// Delivery is a message handed to a consumer under manual acknowledgement.
// Exactly one of Ack, Requeue or DeadLetter must be called.
type Delivery struct {
	Queue       string
	MessageID   string
	Body        []byte
	Attempt     int
	Redelivered bool
	Timestamp   time.Time

	// DeadLetteredFrom is the queue a dead-lettered message originally
	// came from. Empty for messages that were never dead-lettered.
	DeadLetteredFrom string

	ack  func() error
	nack func(requeue bool) error
}

// Ack removes the message from its queue permanently.
func (d Delivery) Ack() error { return d.ack() }

// Requeue hands the message back to the broker for redelivery.
func (d Delivery) Requeue() error { return d.nack(true) }

// DeadLetter rejects the message without requeue; the broker routes it
// through the queue's dead-letter exchange.
func (d Delivery) DeadLetter() error { return d.nack(false) }

// Client is the broker surface used by the publisher, the consumer and the
// operations API.
type Client interface {
	DeclareTopology(ctx context.Context, t Topology) error
	DeclareQueue(ctx context.Context, spec QueueSpec) error
	Publish(ctx context.Context, queue string, p Publishing) error
	// Consume starts a manual-ack consumer. The returned channel is closed
	// when ctx is cancelled or the connection goes away.
	Consume(ctx context.Context, queue, consumerTag string) (<-chan Delivery, error)
	// Get fetches a single message without a consumer. ok is false when the
	// queue is empty.
	Get(ctx context.Context, queue string) (d Delivery, ok bool, err error)
	// QueueDepth returns the number of ready (not in-flight) messages.
	QueueDepth(ctx context.Context, queue string) (int, error)
	// NotifyClose yields an error when the connection is lost and is closed
	// after a graceful Close.
	NotifyClose() <-chan error
	Close() error
}

// Options tunes a broker connection.
type Options struct {
	ConnectionName string
	Prefetch       int
	Heartbeat      time.Duration
}

// MemoryURL selects the in-process broker.
const MemoryURL = "memory://"

// Open connects to url. "memory://" returns a fresh MemoryBroker, anything
// else is dialled as an AMQP URL.
func Open(url string, opts Options, logger *zap.Logger) (Client, error) {
	if strings.HasPrefix(url, MemoryURL) {
		return NewMemoryBroker(), nil
	}
	return Dial(url, opts, logger)
}
