package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownChannel):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrMalformedPayload):
		respondError(w, http.StatusBadRequest, domain.ErrMalformedPayload.Error())
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrInvalidCount),
		errors.Is(err, domain.ErrBulkTooLarge),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrUnknownQueue),
		errors.Is(err, domain.ErrInvalidLimit):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, broker.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "message broker unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
