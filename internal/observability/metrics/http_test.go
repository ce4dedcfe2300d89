package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsRequestsAndErrors(t *testing.T) {
	c := New()
	c.ObserveHTTPRequest("/api/v1/chat", http.MethodPost, 200, 20*time.Millisecond)
	c.ObserveHTTPRequest("/api/v1/chat", http.MethodPost, 200, 30*time.Millisecond)
	c.ObserveHTTPRequest("/api/v1/chat", http.MethodPost, 503, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/api/v1/chat", http.MethodPost, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpErrors.WithLabelValues("/api/v1/chat", http.MethodPost)))
}

func TestCollectorDomainMetrics(t *testing.T) {
	c := New()
	c.ObserveTurn("executed", 200*time.Millisecond)
	c.ObserveTurn("clarification", 100*time.Millisecond)
	c.ObserveTurn("executed", 300*time.Millisecond)
	c.ObserveIntentResult("success")
	c.ObserveToolCall("request_leave", 10*time.Millisecond, nil)
	c.ObserveToolCall("request_leave", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turns.WithLabelValues("executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.intentResults.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("request_leave", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("request_leave", "success")))
}

func TestHandlerExposesTextFormat(t *testing.T) {
	c := New()
	c.ObserveTurn("chit_chat", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `dialog_turns_total{outcome="chit_chat"} 1`))
}
