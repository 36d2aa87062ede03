package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cakeshop/order-notifications/internal/api/middleware"
)

func TestCorrelationID(t *testing.T) {
	var seen string
	h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetCorrelationID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"correlation header", "X-Correlation-ID", "abc"},
		{"request id fallback", "X-Request-ID", "req-1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(tc.header, tc.value)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen != tc.value {
				t.Fatalf("expected %q on context, got %q", tc.value, seen)
			}
			if got := rec.Header().Get(middleware.CorrelationHeader); got != tc.value {
				t.Fatalf("expected %q echoed, got %q", tc.value, got)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(middleware.CorrelationHeader) != seen {
		t.Fatalf("expected a generated id, got %q", seen)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := middleware.RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/api/v1/queues", "/health", "/boom"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.InfoLevel, zapcore.DebugLevel, zapcore.WarnLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Fatalf("line %d: expected %s, got %s", i, want[i], e.Level)
		}
	}
	if got := entries[0].ContextMap()["bytes"]; got != int64(2) {
		t.Fatalf("expected 2 bytes logged, got %v", got)
	}
}
