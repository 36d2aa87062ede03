package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/notifyapi"
	"github.com/cakeshop/order-notifications/internal/ratelimiter"
	"github.com/cakeshop/order-notifications/internal/repository"
)

// ErrDeliveriesClosed is returned by Run when the broker stops delivering
// while the worker was still supposed to be running.
var ErrDeliveriesClosed = errors.New("delivery channel closed by broker")

// Dead-letter reasons, used as a metric label and in the outcome log.
const (
	ReasonMalformed        = "malformed"
	ReasonRetriesExhausted = "retries_exhausted"
)

// Worker consumes one queue. Each delivery is decoded into an envelope,
// rate limited, sent to the Notification API and then acknowledged,
// republished with an incremented retry count, or dead-lettered.
type Worker struct {
	channel    domain.Channel
	queue      string
	tag        string
	client     broker.Client
	sender     notifyapi.Sender
	limiter    *ratelimiter.ChannelLimiters
	outcomes   repository.OutcomeRepository
	maxRetries int
	logger     *zap.Logger
	hooks      MetricHooks
}

// NewWorker constructs a worker for ch. Nil hooks are no-ops.
func NewWorker(
	ch domain.Channel,
	tag string,
	client broker.Client,
	sender notifyapi.Sender,
	limiter *ratelimiter.ChannelLimiters,
	outcomes repository.OutcomeRepository,
	maxRetries int,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	return &Worker{
		channel: ch, queue: ch.Queue(), tag: tag,
		client: client, sender: sender, limiter: limiter, outcomes: outcomes,
		maxRetries: maxRetries, logger: logger,
		hooks: hooks.withDefaults(),
	}
}

// Run consumes until ctx is cancelled. It returns nil after a cancellation
// and ErrDeliveriesClosed if the broker ends the consumer on its own.
//
// Handling runs on a context detached from ctx: shutdown stops new
// deliveries but lets an in-flight API call finish or time out.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.client.Consume(ctx, w.queue, w.tag)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}
	w.logger.Info("consumer started")

	for d := range deliveries {
		w.handle(context.WithoutCancel(ctx), d)
	}

	if ctx.Err() != nil {
		w.logger.Info("consumer stopping")
		return nil
	}
	return fmt.Errorf("%s: %w", w.queue, ErrDeliveriesClosed)
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	start := time.Now()
	log := w.logger.With(
		zap.String("message_id", d.MessageID),
		zap.Int("attempt", d.Attempt),
	)
	defer func() { w.hooks.OnLatency(w.queue, time.Since(start)) }()

	env, err := w.decode(d)
	if err != nil {
		// Retrying cannot fix a payload that does not parse.
		log.Warn("malformed message, dead-lettering", zap.Error(err))
		w.deadLetter(ctx, log, d, "", ReasonMalformed, err)
		return
	}
	ref := domain.Reference(env.Message)
	log = log.With(zap.String("reference", ref))

	sendErr := w.deliver(ctx, env)
	if sendErr == nil {
		if err := d.Ack(); err != nil {
			log.Error("ack failed", zap.Error(err))
			return
		}
		w.hooks.OnAcked(w.queue)
		w.record(ctx, log, d, ref, domain.OutcomeAcked, env.Attempt, nil)
		log.Info("notification delivered")
		return
	}

	if env.Exhausted(w.maxRetries) {
		log.Warn("retries exhausted, dead-lettering", zap.Error(sendErr))
		w.deadLetter(ctx, log, d, ref, ReasonRetriesExhausted, sendErr)
		return
	}

	w.retry(ctx, log, d, env.Next(), sendErr)
}

func (w *Worker) decode(d broker.Delivery) (domain.Envelope, error) {
	msg, err := domain.Decode(w.channel, d.Body)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Attempt: d.Attempt, Message: msg}, nil
}

// deliver waits for a rate-limit token and calls the Notification API.
// A panic anywhere in the call is turned into an ordinary failure.
func (w *Worker) deliver(ctx context.Context, env domain.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during delivery: %v", r)
		}
	}()

	if err := w.limiter.Wait(ctx, w.channel); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	_, err = w.sender.Send(ctx, w.channel, env.Message)
	return err
}

// retry republishes the original body with the next attempt number at the
// tail of the same queue, then acks the original delivery. If the
// republish fails the original is requeued instead, so the message is never
// lost between the two steps.
func (w *Worker) retry(ctx context.Context, log *zap.Logger, d broker.Delivery, next domain.Envelope, cause error) {
	err := w.client.Publish(ctx, w.queue, broker.Publishing{
		MessageID: d.MessageID,
		Body:      d.Body,
		Attempt:   next.Attempt,
	})
	if err != nil {
		log.Error("republish failed, requeueing original", zap.Error(err), zap.NamedError("cause", cause))
		if err := d.Requeue(); err != nil {
			log.Error("requeue failed", zap.Error(err))
		}
		return
	}

	if err := d.Ack(); err != nil {
		// The retry copy is already queued; the original will be redelivered
		// too, which at-least-once delivery allows.
		log.Error("ack after republish failed", zap.Error(err))
	}
	w.hooks.OnRetried(w.queue)
	log.Warn("delivery failed, retry scheduled",
		zap.Int("next_attempt", next.Attempt),
		zap.Int("max_retries", w.maxRetries),
		zap.Error(cause),
	)
}

func (w *Worker) deadLetter(ctx context.Context, log *zap.Logger, d broker.Delivery, ref, reason string, cause error) {
	if err := d.DeadLetter(); err != nil {
		log.Error("dead-letter failed", zap.Error(err))
		return
	}
	w.hooks.OnDeadLettered(w.queue, reason)
	msg := fmt.Sprintf("%s: %v", reason, cause)
	w.record(ctx, log, d, ref, domain.OutcomeDeadLettered, d.Attempt, &msg)
}

func (w *Worker) record(
	ctx context.Context,
	log *zap.Logger,
	d broker.Delivery,
	ref string,
	status domain.OutcomeStatus,
	attempts int,
	lastErr *string,
) {
	if w.outcomes == nil {
		return
	}
	err := w.outcomes.Record(ctx, &domain.Outcome{
		ID:         uuid.NewString(),
		MessageID:  d.MessageID,
		Queue:      w.queue,
		Reference:  ref,
		Status:     status,
		Attempts:   attempts,
		LastError:  lastErr,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Warn("failed to record outcome", zap.Error(err))
	}
}
