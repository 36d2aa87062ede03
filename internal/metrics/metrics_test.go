package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cakeshop/order-notifications/internal/metrics"
)

func TestWorkerHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	onAcked, onRetried, onDeadLettered, onLatency := m.WorkerHooks()

	onAcked("generic.sms")
	onAcked("generic.sms")
	onRetried("generic.sms")
	onDeadLettered("generic.sms", "retries_exhausted")
	onLatency("generic.sms", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.Acked.WithLabelValues("generic.sms")); got != 2 {
		t.Fatalf("expected 2 acked, got %v", got)
	}
	if got := testutil.ToFloat64(m.Retried.WithLabelValues("generic.sms")); got != 1 {
		t.Fatalf("expected 1 retried, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeadLettered.WithLabelValues("generic.sms", "retries_exhausted")); got != 1 {
		t.Fatalf("expected 1 dead-lettered, got %v", got)
	}
	if n := testutil.CollectAndCount(m.Latency); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
}

func TestPublishHooksAndDepth(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	onPublished, onFailed := m.PublishHooks()

	onPublished("order.confirmed")
	onFailed("order.confirmed")
	m.SetQueueDepth("failed-notifications", 7)

	if got := testutil.ToFloat64(m.Published.WithLabelValues("order.confirmed")); got != 1 {
		t.Fatalf("expected 1 published, got %v", got)
	}
	if got := testutil.ToFloat64(m.PublishFailures.WithLabelValues("order.confirmed")); got != 1 {
		t.Fatalf("expected 1 publish failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("failed-notifications")); got != 7 {
		t.Fatalf("expected depth 7, got %v", got)
	}
}
