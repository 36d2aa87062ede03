package broker

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MemoryBroker is an in-process Client with the RabbitMQ semantics this
// service relies on: durable declarations that must match on re-declare,
// FIFO queues, manual acknowledgement, dead-lettering through a direct
// exchange, and redelivery of unacknowledged messages when it is closed.
//
// It is safe for concurrent use.
type MemoryBroker struct {
	mu        sync.Mutex
	queues    map[string]*memQueue
	exchanges map[string]*memExchange
	nextTag   uint64

	done      chan struct{}
	closeErrs chan error
	closed    bool
}

type memQueue struct {
	spec    QueueSpec
	ready   []memMessage
	unacked map[uint64]memMessage
	signal  chan struct{}
}

type memExchange struct {
	kind     string
	bindings map[string][]string // routing key -> queues
}

type memMessage struct {
	id          string
	body        []byte
	headers     amqp.Table
	timestamp   time.Time
	redelivered bool
}

// NewMemoryBroker returns an empty broker with no queues declared.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:    make(map[string]*memQueue),
		exchanges: make(map[string]*memExchange),
		done:      make(chan struct{}),
		closeErrs: make(chan error, 1),
	}
}

func (b *MemoryBroker) DeclareTopology(ctx context.Context, t Topology) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if ex, ok := b.exchanges[t.DeadLetterExchange]; ok {
		if ex.kind != amqp.ExchangeDirect {
			b.mu.Unlock()
			return fmt.Errorf("%w: exchange %s", ErrPreconditionFailed, t.DeadLetterExchange)
		}
	} else {
		b.exchanges[t.DeadLetterExchange] = &memExchange{
			kind:     amqp.ExchangeDirect,
			bindings: make(map[string][]string),
		}
	}
	b.mu.Unlock()

	if err := b.DeclareQueue(ctx, QueueSpec{Name: t.DeadLetterQueue, Durable: true}); err != nil {
		return err
	}

	b.mu.Lock()
	ex := b.exchanges[t.DeadLetterExchange]
	bound := false
	for _, q := range ex.bindings[t.DeadLetterRoutingKey] {
		if q == t.DeadLetterQueue {
			bound = true
			break
		}
	}
	if !bound {
		ex.bindings[t.DeadLetterRoutingKey] = append(ex.bindings[t.DeadLetterRoutingKey], t.DeadLetterQueue)
	}
	b.mu.Unlock()

	for _, q := range t.Queues {
		if err := b.DeclareQueue(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBroker) DeclareQueue(_ context.Context, spec QueueSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if q, ok := b.queues[spec.Name]; ok {
		if !reflect.DeepEqual(q.spec, spec) {
			return fmt.Errorf("%w: queue %s", ErrPreconditionFailed, spec.Name)
		}
		return nil
	}
	b.queues[spec.Name] = &memQueue{
		spec:    spec,
		unacked: make(map[uint64]memMessage),
		signal:  make(chan struct{}, 1),
	}
	return nil
}

func (b *MemoryBroker) Publish(_ context.Context, queue string, p Publishing) error {
	if p.MessageID == "" {
		p.MessageID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	body := make([]byte, len(p.Body))
	copy(body, p.Body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}
	q.push(memMessage{
		id:        p.MessageID,
		body:      body,
		headers:   headersFor(p.Attempt),
		timestamp: p.Timestamp,
	})
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, queue, _ string) (<-chan Delivery, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	q, ok := b.queues[queue]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			d, ok := b.take(queue, q)
			if !ok {
				select {
				case <-q.signal:
					continue
				case <-ctx.Done():
					return
				case <-b.done:
					return
				}
			}

			select {
			case out <- d:
			case <-ctx.Done():
				_ = d.Requeue()
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

func (b *MemoryBroker) Get(_ context.Context, queue string) (Delivery, bool, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Delivery{}, false, ErrClosed
	}
	q, ok := b.queues[queue]
	b.mu.Unlock()
	if !ok {
		return Delivery{}, false, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}
	d, found := b.take(queue, q)
	return d, found, nil
}

func (b *MemoryBroker) QueueDepth(_ context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	q, ok := b.queues[queue]
	if !ok {
		return 0, ErrQueueNotFound
	}
	return len(q.ready), nil
}

// InFlight returns the number of delivered but unacknowledged messages.
func (b *MemoryBroker) InFlight(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queue]; ok {
		return len(q.unacked)
	}
	return 0
}

func (b *MemoryBroker) NotifyClose() <-chan error { return b.closeErrs }

// Fail simulates a lost connection: NotifyClose yields err and every
// consumer channel is closed.
func (b *MemoryBroker) Fail(err error) {
	b.shutdown(err)
}

func (b *MemoryBroker) Close() error {
	b.shutdown(nil)
	return nil
}

func (b *MemoryBroker) shutdown(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	// Unacknowledged messages go back to the head of their queue, as they
	// would when a real consumer channel closes.
	for _, q := range b.queues {
		for tag, m := range q.unacked {
			m.redelivered = true
			q.ready = append([]memMessage{m}, q.ready...)
			delete(q.unacked, tag)
		}
	}
	close(b.done)
	if err != nil {
		b.closeErrs <- err
	}
	close(b.closeErrs)
}

// take moves the head of q into the unacked set and wraps it as a Delivery.
func (b *MemoryBroker) take(queue string, q *memQueue) (Delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || len(q.ready) == 0 {
		return Delivery{}, false
	}
	m := q.ready[0]
	q.ready = q.ready[1:]
	if len(q.ready) > 0 {
		q.notify()
	}

	b.nextTag++
	tag := b.nextTag
	q.unacked[tag] = m

	return Delivery{
		Queue:            queue,
		MessageID:        m.id,
		Body:             m.body,
		Attempt:          attemptFromHeaders(m.headers),
		Redelivered:      m.redelivered,
		Timestamp:        m.timestamp,
		DeadLetteredFrom: deadLetteredFrom(m.headers),
		ack:              func() error { return b.settle(q, tag, false, false) },
		nack:             func(requeue bool) error { return b.settle(q, tag, true, requeue) },
	}, true
}

func (b *MemoryBroker) settle(q *memQueue, tag uint64, reject, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := q.unacked[tag]
	if !ok {
		return ErrAlreadyAcked
	}
	delete(q.unacked, tag)

	switch {
	case !reject:
	case requeue:
		m.redelivered = true
		q.ready = append([]memMessage{m}, q.ready...)
		q.notify()
	default:
		b.deadLetter(q, m)
	}
	return nil
}

// deadLetter routes m through the queue's dead-letter exchange. Messages on
// queues without one are dropped, as RabbitMQ does.
func (b *MemoryBroker) deadLetter(from *memQueue, m memMessage) {
	ex, ok := b.exchanges[from.spec.DeadLetterExchange]
	if !ok {
		return
	}
	headers := amqp.Table{}
	for k, v := range m.headers {
		headers[k] = v
	}
	if _, set := headers[firstDeathQueueHeader]; !set {
		headers[firstDeathQueueHeader] = from.spec.Name
		headers["x-first-death-reason"] = "rejected"
	}
	m.headers = headers
	m.redelivered = false

	for _, name := range ex.bindings[from.spec.DeadLetterRoutingKey] {
		if target, ok := b.queues[name]; ok {
			target.push(m)
		}
	}
}

func (q *memQueue) push(m memMessage) {
	q.ready = append(q.ready, m)
	q.notify()
}

func (q *memQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// compile-time check that MemoryBroker implements Client
var _ Client = (*MemoryBroker)(nil)
