package broker

import (
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cakeshop/order-notifications/internal/domain"
)

const firstDeathQueueHeader = "x-first-death-queue"

// headersFor builds the AMQP header table for a publishing.
func headersFor(attempt int) amqp.Table {
	return amqp.Table{domain.RetryCountHeader: int32(attempt)}
}

// attemptFromHeaders reads x-retry-count. Producers in other languages write
// it with whatever integer width their client picks, so every numeric
// representation is accepted. Missing or unreadable values count as 0.
func attemptFromHeaders(h amqp.Table) int {
	if h == nil {
		return 0
	}
	switch v := h[domain.RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func deadLetteredFrom(h amqp.Table) string {
	if h == nil {
		return ""
	}
	s, _ := h[firstDeathQueueHeader].(string)
	return s
}
