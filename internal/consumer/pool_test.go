package consumer_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/config"
	"github.com/cakeshop/order-notifications/internal/consumer"
	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/publisher"
	"github.com/cakeshop/order-notifications/internal/ratelimiter"
	"github.com/cakeshop/order-notifications/internal/repository"
)

func TestPool_DeliversEveryChannel(t *testing.T) {
	api, calls := stubAPI(t, http.StatusOK)
	b := broker.NewMemoryBroker()
	defer b.Close()
	require.NoError(t, b.DeclareTopology(context.Background(), broker.NewTopology(domain.QueueNames()...)))

	var acked sync.Map
	var total atomic.Int32
	cfg := &config.Config{WorkersPerQueue: 2, MaxRetries: domain.MaxRetries}
	pool := consumer.NewPool(cfg, b, api, ratelimiter.New(0), repository.NewMemoryOutcomeRepository(0),
		zap.NewNop(), consumer.MetricHooks{
			OnAcked: func(q string) {
				acked.Store(q, true)
				total.Add(1)
			},
		})
	assert.Equal(t, 10, pool.Size())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	pub := publisher.New(b, 0, zap.NewNop(), publisher.Hooks{})
	for _, ch := range domain.Channels() {
		msg, err := domain.SampleMessage(ch, time.Now())
		require.NoError(t, err)
		require.NoError(t, pub.Publish(ctx, msg))
	}

	require.Eventually(t, func() bool { return total.Load() == 5 }, waitFor, 5*time.Millisecond)
	for _, q := range domain.QueueNames() {
		_, ok := acked.Load(q)
		assert.True(t, ok, q)
	}
	assert.EqualValues(t, 5, calls.Load())

	cancel()
	pool.Wait()

	select {
	case err := <-pool.Errors():
		t.Fatalf("unexpected worker error: %v", err)
	default:
	}
}

func TestPool_ReportsBrokerLoss(t *testing.T) {
	b := broker.NewMemoryBroker()
	require.NoError(t, b.DeclareTopology(context.Background(), broker.NewTopology(domain.QueueNames()...)))

	cfg := &config.Config{WorkersPerQueue: 1, MaxRetries: domain.MaxRetries}
	pool := consumer.NewPool(cfg, b, &fakeSender{}, ratelimiter.New(0), nil, zap.NewNop(), consumer.MetricHooks{})
	pool.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	b.Fail(assert.AnError)

	select {
	case err := <-pool.Errors():
		assert.ErrorIs(t, err, consumer.ErrDeliveriesClosed)
	case <-time.After(waitFor):
		t.Fatal("expected a worker error after broker loss")
	}
	pool.Wait()
}

func TestDepthMonitor_SamplesQueues(t *testing.T) {
	b := broker.NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()
	require.NoError(t, b.DeclareTopology(ctx, broker.NewTopology(domain.QueueGenericSMS)))
	require.NoError(t, b.Publish(ctx, domain.QueueGenericSMS, broker.Publishing{Body: []byte(`{}`)}))
	require.NoError(t, b.Publish(ctx, domain.QueueGenericSMS, broker.Publishing{Body: []byte(`{}`)}))

	var mu sync.Mutex
	depths := make(map[string]int)
	m := consumer.NewDepthMonitor(b, []string{domain.QueueGenericSMS, domain.DeadLetterQueue, "missing"},
		5*time.Millisecond, zap.NewNop(), func(q string, n int) {
			mu.Lock()
			depths[q] = n
			mu.Unlock()
		})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		m.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return depths[domain.QueueGenericSMS] == 2
	}, waitFor, 5*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, depths[domain.DeadLetterQueue])
	_, sampled := depths["missing"]
	assert.False(t, sampled, "undeclared queues are skipped")
}
