package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/service"
)

// QueueHandler serves the operator view of the pipeline: queue depths, the
// outcome log and dead-letter replay. Raw Prometheus metrics are served
// separately at /metrics.
type QueueHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewQueueHandler(svc *service.QueueService, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{svc: svc, logger: logger}
}

// Depths handles GET /api/v1/queues
//
// @Summary  Ready-message depth of every queue
// @Tags     queues
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/queues [get]
func (h *QueueHandler) Depths(w http.ResponseWriter, r *http.Request) {
	depths, err := h.svc.Depths(r.Context())
	if err != nil {
		h.logger.Warn("queue depth lookup failed", zap.Error(err))
		mapError(w, err)
		return
	}

	total := 0
	for _, d := range depths {
		total += d.Depth
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queues": depths,
		"total":  total,
	})
}

// Outcomes handles GET /api/v1/outcomes
//
// @Summary  Recent delivery outcomes
// @Tags     queues
// @Produce  json
// @Param    status  query     string  false  "acked or dead_lettered"
// @Param    queue   query     string  false  "Queue name"
// @Param    limit   query     int     false  "Items (default 50, max 500)"
// @Success  200     {object}  map[string]any
// @Failure  422     {object}  map[string]string
// @Router   /api/v1/outcomes [get]
func (h *QueueHandler) Outcomes(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOutcomeFilter(r)
	if err != nil {
		mapError(w, err)
		return
	}

	outcomes, counts, err := h.svc.Outcomes(r.Context(), filter)
	if err != nil {
		mapError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []*domain.Outcome{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":   outcomes,
		"totals": counts,
	})
}

// ReplayDeadLetters handles POST /api/v1/queues/dead-letter/replay?limit=N
//
// @Summary  Move dead letters back to their original queues
// @Tags     queues
// @Produce  json
// @Param    limit  query     int  false  "Messages to move (default 100, max 500)"
// @Success  200    {object}  service.ReplayResult
// @Failure  422    {object}  map[string]string
// @Router   /api/v1/queues/dead-letter/replay [post]
func (h *QueueHandler) ReplayDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			mapError(w, domain.ErrInvalidLimit)
			return
		}
		limit = n
	}

	res, err := h.svc.ReplayDeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error("dead-letter replay failed", zap.Int("replayed", res.Replayed), zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func parseOutcomeFilter(r *http.Request) (domain.OutcomeFilter, error) {
	q := r.URL.Query()
	filter := domain.OutcomeFilter{}

	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return filter, domain.ErrInvalidLimit
		}
		filter.Limit = n
	}
	if s := q.Get("status"); s != "" {
		st := domain.OutcomeStatus(s)
		filter.Status = &st
	}
	if queue := q.Get("queue"); queue != "" {
		filter.Queue = &queue
	}
	return filter, nil
}
