package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/cakeshop/order-notifications/internal/domain"
)

// ChannelLimiters holds one token bucket per notification channel so a
// backlog on one queue cannot exhaust the Notification API's SMS or email
// quota for the others. Burst equals the rate: no saved-up burst above the
// per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates limiters allowing ratePerSec calls per second per channel.
// A non-positive rate disables limiting.
func New(ratePerSec int) *ChannelLimiters {
	limiters := make(map[domain.Channel]*rate.Limiter, len(domain.Channels()))
	for _, ch := range domain.Channels() {
		if ratePerSec <= 0 {
			limiters[ch] = rate.NewLimiter(rate.Inf, 0)
			continue
		}
		limiters[ch] = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &ChannelLimiters{limiters: limiters}
}

// Wait blocks until the channel's limiter grants a token. Called by each
// worker immediately before calling the Notification API.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return domain.ErrUnknownChannel
	}
	return l.Wait(ctx)
}
