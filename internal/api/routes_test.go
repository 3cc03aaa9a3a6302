package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platelab/labeler/internal/errors"
)

func TestValidateRoutes(t *testing.T) {
	t.Parallel()
	ok := func(echo.Context) error { return nil }

	tests := []struct {
		name    string
		routes  []Route
		wantErr string
	}{
		{
			name: "distinct routes",
			routes: []Route{
				{Method: http.MethodGet, Path: "/a", Name: "a", Handler: ok},
				{Method: http.MethodPost, Path: "/a", Name: "a.post", Handler: ok},
			},
		},
		{
			name: "duplicate method and path",
			routes: []Route{
				{Method: http.MethodGet, Path: "/images/all", Name: "one", Handler: ok},
				{Method: http.MethodGet, Path: "/images/all", Name: "two", Handler: ok},
			},
			wantErr: "duplicate route GET /images/all",
		},
		{
			name: "duplicate name",
			routes: []Route{
				{Method: http.MethodGet, Path: "/a", Name: "same", Handler: ok},
				{Method: http.MethodGet, Path: "/b", Name: "same", Handler: ok},
			},
			wantErr: "duplicate route name",
		},
		{
			name:    "nil handler",
			routes:  []Route{{Method: http.MethodGet, Path: "/a"}},
			wantErr: "nil handler",
		},
		{
			name:    "empty method",
			routes:  []Route{{Path: "/a", Handler: ok}},
			wantErr: "empty method",
		},
		{
			name:    "relative path",
			routes:  []Route{{Method: http.MethodGet, Path: "a", Handler: ok}},
			wantErr: "path must start with /",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateRoutes(tt.routes)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRouteTable(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{})

	got := make(map[string]bool)
	for _, r := range env.server.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /images/all",
		"GET /images/counts",
		"GET /images/image-details/*",
		"GET /preview_crop/*",
		"POST /images/label",
		"POST /images/valid",
		"POST /images/invalid",
		"POST /images/skip",
		"GET /unlabeled/*",
		"GET /valid/*",
		"GET /invalid/*",
		"GET /skipped/*",
		"GET /health",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
	assert.False(t, got["GET /metrics"], "metrics must be opt-in")
	require.NoError(t, validateRoutes(env.server.Routes()))
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := New(DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "catalog")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.BodyLimit = "lots"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body limit")
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{})

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "uptime_seconds")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Metrics = true
	env := setupAPITestEnvironment(t, apiTestOptions{config: cfg, metrics: true}, "unlabeled/a.jpg")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/images/counts", nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/valid/none.jpg", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `labeler_http_requests_total{method="GET",route="/images/counts",status_code="200"} 1`)
	assert.Contains(t, text, `route="/valid/*",status_code="404"`)
	assert.NotContains(t, text, "none.jpg")

	n, err := testutil.GatherAndCount(env.metrics.Registry(), "labeler_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = freePort(t)
	cfg.ShutdownTimeout = 2 * time.Second
	env := setupAPITestEnvironment(t, apiTestOptions{config: cfg}, "unlabeled/a.jpg")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	transport := &http.Transport{}
	client := &http.Client{Transport: transport, Timeout: 2 * time.Second}
	defer transport.CloseIdleConnections()

	url := fmt.Sprintf("http://%s/images/counts", cfg.Address())
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), `"unlabeled":1`)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	transport.CloseIdleConnections()

	_, err := client.Get(url)
	assert.Error(t, err)
}

func TestRun_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	cfg := DefaultConfig()
	cfg.Port = l.Addr().(*net.TCPAddr).Port
	env := setupAPITestEnvironment(t, apiTestOptions{config: cfg})

	err = env.server.Run(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}
