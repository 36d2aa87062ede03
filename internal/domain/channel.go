package domain

// Channel is a logical notification category. Each channel maps 1:1 to a
// durable queue and to one Notification API endpoint.
type Channel string

const (
	ChannelOrderConfirmed    Channel = "order-confirmed"
	ChannelOrderConfirmEmail Channel = "order-confirmation-email"
	ChannelOrderConfirmSMS   Channel = "order-confirmation-sms"
	ChannelOutForDelivery    Channel = "out-for-delivery"
	ChannelGenericSMS        Channel = "generic-sms"
)

// Queue and exchange names shared by producer and consumer.
const (
	QueueOrderConfirmed    = "order.confirmed"
	QueueOrderConfirmEmail = "order.confirmation.email"
	QueueOrderConfirmSMS   = "order.confirmation.sms"
	QueueOutForDelivery    = "order.out-for-delivery"
	QueueGenericSMS        = "generic.sms"

	DeadLetterExchange   = "dlx"
	DeadLetterRoutingKey = "failed"
	DeadLetterQueue      = "failed-notifications"

	// RetryCountHeader carries the delivery attempt counter on every message.
	RetryCountHeader = "x-retry-count"

	// MaxRetries is the default number of logical republishes before a
	// message is dead-lettered.
	MaxRetries = 3
)

type route struct {
	queue    string
	endpoint string
	kind     string
}

var routes = map[Channel]route{
	ChannelOrderConfirmed:    {QueueOrderConfirmed, "/order-confirmation", "order"},
	ChannelOrderConfirmEmail: {QueueOrderConfirmEmail, "/email/order-confirmation", "email"},
	ChannelOrderConfirmSMS:   {QueueOrderConfirmSMS, "/sms/order-confirmation", "sms"},
	ChannelOutForDelivery:    {QueueOutForDelivery, "/sms/out-for-delivery", "delivery"},
	ChannelGenericSMS:        {QueueGenericSMS, "/sms", "generic"},
}

// Channels lists every channel in a stable order.
func Channels() []Channel {
	return []Channel{
		ChannelOrderConfirmed,
		ChannelOrderConfirmEmail,
		ChannelOrderConfirmSMS,
		ChannelOutForDelivery,
		ChannelGenericSMS,
	}
}

// QueueNames returns the durable queue of every channel, in Channels() order.
func QueueNames() []string {
	names := make([]string, 0, len(routes))
	for _, ch := range Channels() {
		names = append(names, ch.Queue())
	}
	return names
}

func (c Channel) IsValid() bool {
	_, ok := routes[c]
	return ok
}

// Queue returns the durable queue name for the channel, or "" if unknown.
func (c Channel) Queue() string { return routes[c].queue }

// Endpoint returns the Notification API path for the channel.
func (c Channel) Endpoint() string { return routes[c].endpoint }

// Kind returns the short name used by the CLI and the publish endpoints.
func (c Channel) Kind() string { return routes[c].kind }

// ChannelForKind resolves a short kind ("order", "email", "sms", "delivery",
// "generic") or a full channel name.
func ChannelForKind(kind string) (Channel, error) {
	if c := Channel(kind); c.IsValid() {
		return c, nil
	}
	for c, r := range routes {
		if r.kind == kind {
			return c, nil
		}
	}
	return "", ErrUnknownChannel
}

// ChannelForQueue is the inverse of Channel.Queue.
func ChannelForQueue(queue string) (Channel, error) {
	for c, r := range routes {
		if r.queue == queue {
			return c, nil
		}
	}
	return "", ErrUnknownChannel
}
