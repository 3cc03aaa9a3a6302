package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, Config{})
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, defaultUserAgent, client.userAgent)

	custom := newTestClient(t, Config{DefaultTimeout: 5 * time.Second, UserAgent: "TestAgent/1.0"})
	assert.Equal(t, 5*time.Second, custom.defaultTimeout)
	assert.Equal(t, "TestAgent/1.0", custom.userAgent)
}

func TestPost_SendsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
	client := newTestClient(t, Config{})

	resp, release, err := client.Post(t.Context(), server.URL, "text/plain", strings.NewReader("ping"))
	require.NoError(t, err)
	defer release()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(body))
}

func TestDo_DefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(t, Config{DefaultTimeout: 50 * time.Millisecond})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	_, _, err = client.Do(t.Context(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_CallerCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	client := newTestClient(t, Config{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	_, _, err = client.Do(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAfterResponseHook(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	client := newTestClient(t, Config{})

	var calls atomic.Int32
	var status atomic.Int32
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error, _ time.Duration) {
		calls.Add(1)
		if err == nil {
			status.Store(int32(resp.StatusCode)) //nolint:gosec // HTTP status fits int32
		}
	})

	resp, release, err := client.Post(t.Context(), server.URL, "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	release()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(http.StatusTeapot), status.Load())
}
