package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/domain"
)

// MessagePublisher is the part of Publisher the order flow depends on.
type MessagePublisher interface {
	Publish(ctx context.Context, msg domain.Message) error
	PublishBulk(ctx context.Context, msg domain.Message, count int) (int, error)
}

// OrderNotifier is what order creation calls. A notification that cannot be
// queued must never fail the order, so broker errors are logged and dropped.
type OrderNotifier struct {
	pub    MessagePublisher
	logger *zap.Logger
}

func NewOrderNotifier(pub MessagePublisher, logger *zap.Logger) *OrderNotifier {
	return &OrderNotifier{pub: pub, logger: logger}
}

// Notify validates msg and hands it to the publisher. Validation failures are
// returned; broker failures are logged and reported only through queued.
func (n *OrderNotifier) Notify(ctx context.Context, msg domain.Message) (queued bool, err error) {
	if !msg.Channel().IsValid() {
		return false, domain.ErrUnknownChannel
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}

	if err := n.pub.Publish(ctx, msg); err != nil {
		n.logger.Error("failed to queue notification",
			zap.String("channel", string(msg.Channel())),
			zap.String("reference", domain.Reference(msg)),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}

// NotifyBulk publishes count copies of msg. Partial failure is logged; the
// number actually queued is returned.
func (n *OrderNotifier) NotifyBulk(ctx context.Context, msg domain.Message, count int) (int, error) {
	if !msg.Channel().IsValid() {
		return 0, domain.ErrUnknownChannel
	}
	if count < 1 || count > MaxBulkCount {
		return 0, domain.ErrInvalidCount
	}
	if err := msg.Validate(); err != nil {
		return 0, err
	}

	published, err := n.pub.PublishBulk(ctx, msg, count)
	if err != nil {
		n.logger.Error("bulk notification partially failed",
			zap.String("channel", string(msg.Channel())),
			zap.Int("requested", count),
			zap.Int("queued", published),
			zap.Error(err),
		)
	}
	return published, nil
}
