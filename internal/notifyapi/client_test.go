package notifyapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/notifyapi"
)

// stubAPI answers with statuses[i] on the i-th call and the last status
// afterwards.
func stubAPI(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var calls atomic.Int32
	var lastPath atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		lastPath.Store(r.URL.Path)
		status := statuses[len(statuses)-1]
		if n < len(statuses) {
			status = statuses[n]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status < 300 {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "sent"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": http.StatusText(status)})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &lastPath
}

func newClient(baseURL string) *notifyapi.Client {
	return notifyapi.New(baseURL, 2*time.Second, 10*time.Millisecond, zap.NewNop())
}

var sms = &domain.GenericSMS{To: "+15550100", Message: "hello"}

func TestSend_Success(t *testing.T) {
	srv, calls, path := stubAPI(t, http.StatusOK)

	resp, err := newClient(srv.URL+"/api/notifications").Send(context.Background(), domain.ChannelGenericSMS, sms)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "sent", resp.Message)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "/api/notifications/sms", path.Load())
}

func TestSend_EndpointPerChannel(t *testing.T) {
	srv, _, path := stubAPI(t, http.StatusOK)
	c := newClient(srv.URL)

	for _, ch := range domain.Channels() {
		msg, err := domain.SampleMessage(ch, time.Now())
		require.NoError(t, err)

		_, err = c.Send(context.Background(), ch, msg)
		require.NoError(t, err)
		assert.Equal(t, ch.Endpoint(), path.Load(), ch)
	}
}

func TestSend_RetriesOnceOnServerError(t *testing.T) {
	srv, calls, _ := stubAPI(t, http.StatusServiceUnavailable, http.StatusOK)

	_, err := newClient(srv.URL).Send(context.Background(), domain.ChannelGenericSMS, sms)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSend_GivesUpAfterSecondServerError(t *testing.T) {
	srv, calls, _ := stubAPI(t, http.StatusInternalServerError)

	_, err := newClient(srv.URL).Send(context.Background(), domain.ChannelGenericSMS, sms)
	require.Error(t, err)

	var se *notifyapi.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.True(t, se.Temporary())
	assert.EqualValues(t, 2, calls.Load())
}

func TestSend_NoRetryOnClientError(t *testing.T) {
	srv, calls, _ := stubAPI(t, http.StatusBadRequest)

	_, err := newClient(srv.URL).Send(context.Background(), domain.ChannelGenericSMS, sms)
	require.Error(t, err)
	assert.True(t, notifyapi.IsClientError(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestSend_SuccessFalseIsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"success":false,"error":"provider rejected"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Send(context.Background(), domain.ChannelGenericSMS, sms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider rejected")
	assert.EqualValues(t, 1, calls.Load())
}

func TestSend_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	start := time.Now()
	_, err := newClient(url).Send(context.Background(), domain.ChannelGenericSMS, sms)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond, "expected one delayed retry")
}

func TestSend_CancelDuringRetryWait(t *testing.T) {
	srv, calls, _ := stubAPI(t, http.StatusBadGateway)
	c := notifyapi.New(srv.URL, time.Second, time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, domain.ChannelGenericSMS, sms)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSend_UnknownChannel(t *testing.T) {
	_, err := newClient("http://127.0.0.1:0").Send(context.Background(), "fax", sms)
	assert.ErrorIs(t, err, domain.ErrUnknownChannel)
}

func TestPing(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newClient(srv.URL+"/api/notifications").Ping(context.Background()))
	assert.Equal(t, "/health", path.Load())
}
