package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
)

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	reg := metrics.NewRegistry()
	gm := metrics.NewGatewayMetrics(reg)
	fm := metrics.NewFeedMetrics(reg)

	gm.ActiveSessions.Inc()
	gm.AuthFailures.WithLabelValues("missing_token").Inc()
	fm.Runs.WithLabelValues("ok").Inc()

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "cryptostream_gateway_active_sessions 1")
	assert.Contains(t, text, `cryptostream_gateway_auth_failures_total{reason="missing_token"} 1`)
	assert.Contains(t, text, `cryptostream_feed_runs_total{outcome="ok"} 1`)
	assert.Contains(t, text, "go_goroutines")
}
