package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/domain"
)

// DepthMonitor samples the ready depth of every queue on a fixed interval.
// Growth of the dead-letter queue is logged as a warning; that log line is
// the only alert for failed notifications.
type DepthMonitor struct {
	client   broker.Client
	queues   []string
	interval time.Duration
	logger   *zap.Logger
	onDepth  func(queue string, depth int)

	lastDead int
}

func NewDepthMonitor(
	client broker.Client,
	queues []string,
	interval time.Duration,
	logger *zap.Logger,
	onDepth func(queue string, depth int),
) *DepthMonitor {
	if onDepth == nil {
		onDepth = func(string, int) {}
	}
	return &DepthMonitor{client: client, queues: queues, interval: interval, logger: logger, onDepth: onDepth}
}

// Run ticks every interval until ctx is cancelled.
func (m *DepthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("queue depth monitor started", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("queue depth monitor stopping")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *DepthMonitor) poll(ctx context.Context) {
	for _, q := range m.queues {
		depth, err := m.client.QueueDepth(ctx, q)
		if err != nil {
			m.logger.Warn("queue depth poll failed", zap.String("queue", q), zap.Error(err))
			continue
		}
		m.onDepth(q, depth)

		if q != domain.DeadLetterQueue {
			continue
		}
		if depth > m.lastDead {
			m.logger.Warn("dead-letter queue is growing",
				zap.String("queue", q),
				zap.Int("depth", depth),
				zap.Int("new", depth-m.lastDead),
			)
		}
		m.lastDead = depth
	}
}
