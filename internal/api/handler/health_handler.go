package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DepthReader reads the depth of a queue; the health check uses it to prove
// the broker connection is alive.
type DepthReader interface {
	QueueDepth(ctx context.Context, queue string) (int, error)
}

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	queues          []string
	deadLetterQueue string
	notificationURL string
	api             Pinger
	broker          DepthReader
}

func NewHealthHandler(queues []string, deadLetterQueue, notificationURL string, api Pinger, broker DepthReader) *HealthHandler {
	return &HealthHandler{
		queues:          queues,
		deadLetterQueue: deadLetterQueue,
		notificationURL: notificationURL,
		api:             api,
		broker:          broker,
	}
}

// Health handles GET /health
//
// The service is unhealthy only when the broker is unreachable. An
// unreachable Notification API is reported but does not fail the probe:
// messages simply wait in their queues.
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Failure  503  {object}  map[string]any
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	brokerUp := true
	if _, err := h.broker.QueueDepth(ctx, h.deadLetterQueue); err != nil {
		brokerUp = false
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	apiUp := h.api.Ping(ctx) == nil

	respondJSON(w, code, map[string]any{
		"status":                       status,
		"timestamp":                    time.Now().UTC().Format(time.RFC3339),
		"queues":                       h.queues,
		"deadLetterQueue":              h.deadLetterQueue,
		"brokerReachable":              brokerUp,
		"notificationService":          h.notificationURL,
		"notificationServiceReachable": apiUp,
	})
}
