package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/cakeshop/order-notifications/internal/api/middleware"
	"github.com/cakeshop/order-notifications/internal/domain"
)

// Notifier queues notifications without failing on broker errors.
type Notifier interface {
	Notify(ctx context.Context, msg domain.Message) (bool, error)
	NotifyBulk(ctx context.Context, msg domain.Message, count int) (int, error)
}

// NotificationHandler lets the order flow (and operators) queue messages.
type NotificationHandler struct {
	notifier Notifier
	maxBulk  int
	logger   *zap.Logger
}

// NewNotificationHandler serves publish requests. maxBulk is the largest
// count a bulk request may ask for.
func NewNotificationHandler(notifier Notifier, maxBulk int, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, maxBulk: maxBulk, logger: logger}
}

type publishResponse struct {
	Channel   domain.Channel `json:"channel"`
	Queue     string         `json:"queue"`
	Reference string         `json:"reference,omitempty"`
	Queued    bool           `json:"queued"`
}

// Publish handles POST /api/v1/notifications/{kind}
//
// The response is 202 whether or not the broker accepted the message:
// a notification that could not be queued must not fail the caller's order.
// "queued" tells the two cases apart.
//
// @Summary     Queue one notification
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       kind  path      string  true  "order, email, sms, delivery or generic"
// @Success     202   {object}  publishResponse
// @Failure     400   {object}  map[string]string
// @Failure     404   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/notifications/{kind} [post]
func (h *NotificationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ch, err := domain.ChannelForKind(chi.URLParam(r, "kind"))
	if err != nil {
		mapError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	msg, err := domain.Decode(ch, body)
	if err != nil {
		h.logger.Warn("rejected notification payload",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	queued, err := h.notifier.Notify(r.Context(), msg)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, publishResponse{
		Channel:   ch,
		Queue:     ch.Queue(),
		Reference: domain.Reference(msg),
		Queued:    queued,
	})
}

// PublishBulk handles POST /api/v1/notifications/{kind}/bulk?count=N
//
// Publishes N near-duplicates for load generation. With an empty body a
// sample message for the channel is used.
//
// @Summary     Queue N copies of a notification
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       kind   path      string  true   "order, email, sms, delivery or generic"
// @Param       count  query     int     false  "Number of copies (default 1, capped by the write timeout)"
// @Success     202    {object}  map[string]any
// @Failure     404    {object}  map[string]string
// @Failure     422    {object}  map[string]string
// @Router      /api/v1/notifications/{kind}/bulk [post]
func (h *NotificationHandler) PublishBulk(w http.ResponseWriter, r *http.Request) {
	ch, err := domain.ChannelForKind(chi.URLParam(r, "kind"))
	if err != nil {
		mapError(w, err)
		return
	}

	count := 1
	if c := r.URL.Query().Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			mapError(w, domain.ErrInvalidCount)
			return
		}
		count = n
	}
	if count > h.maxBulk {
		respondError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("%s: at most %d", domain.ErrBulkTooLarge, h.maxBulk))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	var msg domain.Message
	if len(body) == 0 {
		msg, err = domain.SampleMessage(ch, time.Now().UTC())
	} else {
		msg, err = domain.Decode(ch, body)
	}
	if err != nil {
		mapError(w, err)
		return
	}

	published, err := h.notifier.NotifyBulk(r.Context(), msg, count)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"channel":   ch,
		"queue":     ch.Queue(),
		"requested": count,
		"published": published,
	})
}
