package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/ratelimiter"
)

func TestWait_BurstThenThrottle(t *testing.T) {
	l := ratelimiter.New(5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx, domain.ChannelGenericSMS); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("burst tokens should be granted immediately")
	}

	// Other channels have their own bucket.
	if err := l.Wait(ctx, domain.ChannelOrderConfirmEmail); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, domain.ChannelGenericSMS); err == nil {
		t.Fatal("expected the exhausted bucket to block past the deadline")
	}
}

func TestWait_Disabled(t *testing.T) {
	l := ratelimiter.New(0)
	for i := 0; i < 1000; i++ {
		if err := l.Wait(context.Background(), domain.ChannelOrderConfirmed); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestWait_UnknownChannel(t *testing.T) {
	if err := ratelimiter.New(1).Wait(context.Background(), "fax"); err != domain.ErrUnknownChannel {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}
