// Package consumer runs one independent consume loop per notification queue
// and applies the ack / retry / dead-letter policy to every delivery.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/config"
	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/notifyapi"
	"github.com/cakeshop/order-notifications/internal/ratelimiter"
	"github.com/cakeshop/order-notifications/internal/repository"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnAcked        func(queue string)
	OnRetried      func(queue string)
	OnDeadLettered func(queue, reason string)
	OnLatency      func(queue string, d time.Duration)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnAcked == nil {
		h.OnAcked = func(string) {}
	}
	if h.OnRetried == nil {
		h.OnRetried = func(string) {}
	}
	if h.OnDeadLettered == nil {
		h.OnDeadLettered = func(string, string) {}
	}
	if h.OnLatency == nil {
		h.OnLatency = func(string, time.Duration) {}
	}
	return h
}

// Pool manages the workers of every queue. Workers never share state, so a
// stalled queue does not hold up the others.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	errs    chan error
}

// NewPool creates cfg.WorkersPerQueue workers for each channel.
func NewPool(
	cfg *config.Config,
	client broker.Client,
	sender notifyapi.Sender,
	limiter *ratelimiter.ChannelLimiters,
	outcomes repository.OutcomeRepository,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	var workers []*Worker
	for _, ch := range domain.Channels() {
		for i := 1; i <= cfg.WorkersPerQueue; i++ {
			tag := ch.Queue() + "-consumer"
			if i > 1 {
				tag = fmt.Sprintf("%s-%d", tag, i)
			}
			workers = append(workers, NewWorker(
				ch, tag, client, sender, limiter, outcomes, cfg.MaxRetries,
				logger.With(zap.String("queue", ch.Queue()), zap.String("consumer_tag", tag)),
				hooks,
			))
		}
	}
	return &Pool{workers: workers, errs: make(chan error, len(workers))}
}

// Start launches all workers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				p.errs <- err
			}
		}(w)
	}
}

// Errors yields the error of every worker that stopped on its own.
func (p *Pool) Errors() <-chan error { return p.errs }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Wait blocks until every worker has returned.
// Call this after cancelling the context so in-flight messages finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
