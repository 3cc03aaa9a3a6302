package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platelab/labeler/internal/observability/metrics"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics("none")
	require.NoError(t, err)

	m.Triage.RecordOperation(metrics.OpMarkSkipped, metrics.StatusSuccess)
	m.HTTP.RecordRequest(http.MethodPost, "/images/skip", http.StatusOK, 0.002)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test server
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `labeler_triage_operations_total{operation="mark_skipped",status="success"} 1`)
	assert.Contains(t, string(body), `labeler_http_requests_total{method="POST",route="/images/skip",status_code="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
