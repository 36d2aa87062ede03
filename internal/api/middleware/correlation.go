package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Header names accepted as the caller's trace id, in order of preference.
const (
	CorrelationHeader = "X-Correlation-ID"
	requestIDHeader   = "X-Request-ID"
)

// CorrelationID takes the caller's X-Correlation-ID (or X-Request-ID, which
// the order service's gateway sets) and generates a UUID when neither is
// present. The id is stored on the request context and echoed back so a
// queued notification can be traced to the request that created it.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = r.Header.Get(requestIDHeader)
		}
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}

// WithCorrelationID returns a copy of ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID returns the id stored by the middleware, or "".
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
