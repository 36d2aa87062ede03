// Package notifyapi calls the Notification API, the HTTP service that turns a
// queued message into an email and/or SMS.
package notifyapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cakeshop/order-notifications/internal/domain"
)

// Response is the body every Notification API endpoint returns:
// {"success": true, "message": ...} or {"success": false, "error": ...}.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sender delivers one message to the endpoint bound to its channel.
// The consumer depends on this interface so tests can stub the API.
type Sender interface {
	Send(ctx context.Context, ch domain.Channel, msg domain.Message) (*Response, error)
}

// StatusError is returned when the API answers with a non-2xx status, or
// with a 2xx status and "success": false.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("notification api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("notification api: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the failure is worth the wrapper's own retry.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsClientError reports whether err is a 4xx answer from the API.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}
