package api

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/preview"
)

func TestListImages(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{},
		"unlabeled/Goa/b.jpg",
		"unlabeled/a.jpg",
		"unlabeled/notes.txt",
		"valid/KA01.jpg",
		"skipped/x.png",
	)

	rec := env.do(t, http.MethodGet, "/images/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{
		"skipped/x.png",
		"unlabeled/Goa/b.jpg",
		"unlabeled/a.jpg",
		"valid/KA01.jpg",
	}, decodeJSON[[]string](t, rec))
}

func TestListImages_EmptyRootIsEmptyArray(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{})

	rec := env.do(t, http.MethodGet, "/images/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCountImages(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{},
		"unlabeled/a.jpg", "unlabeled/b.jpg", "invalid/c.jpg")

	rec := env.do(t, http.MethodGet, "/images/counts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unlabeled":2,"valid":0,"invalid":1,"skipped":0}`, rec.Body.String())
}

func TestImageDetails(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{}, "unlabeled/Goa/ka01ab1234.jpg")

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		rec := env.do(t, http.MethodGet, "/images/image-details/unlabeled/Goa/ka01ab1234.jpg", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, preview.Details{
			Path:      "unlabeled/Goa/ka01ab1234.jpg",
			Category:  media.Unlabeled,
			Label:     "KA01AB1234",
			CropPath:  "/preview_crop/unlabeled/Goa/ka01ab1234.jpg",
			ImagePath: "/unlabeled/Goa/ka01ab1234.jpg",
		}, decodeJSON[preview.Details](t, rec))
	})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing", target: "/images/image-details/valid/none.jpg", status: http.StatusNotFound},
		{name: "not an image", target: "/images/image-details/unlabeled/readme.txt", status: http.StatusBadRequest},
		{name: "encoded traversal", target: "/images/image-details/..%2F..%2Fetc%2Fpasswd.jpg", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeJSON[ErrorResponse](t, rec)
			assert.Equal(t, tt.status, body.Code)
			assert.NotEmpty(t, body.CorrelationID)
		})
	}
}

func TestPreviewCrop(t *testing.T) {
	t.Parallel()

	t.Run("renders jpeg", func(t *testing.T) {
		t.Parallel()
		env := setupAPITestEnvironment(t, apiTestOptions{}, "unlabeled/car.png")

		rec := env.do(t, http.MethodGet, "/preview_crop/unlabeled/car.png", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		assert.Positive(t, cfg.Width)
		assert.Positive(t, cfg.Height)

		// crops are never persisted
		entries, err := os.ReadDir(filepath.Join(env.root, "unlabeled"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	tests := []struct {
		name     string
		empty    bool
		files    []string
		target   string
		status   int
	}{
		{name: "no plate", empty: true, files: []string{"unlabeled/car.png"}, target: "/preview_crop/unlabeled/car.png", status: http.StatusNotFound},
		{name: "missing image", target: "/preview_crop/unlabeled/none.png", status: http.StatusNotFound},
		{name: "bad path", target: "/preview_crop/unlabeled/file.txt", status: http.StatusBadRequest},
		{name: "undecodable", files: []string{"unlabeled/broken.jpg"}, target: "/preview_crop/unlabeled/broken.jpg", status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := setupAPITestEnvironment(t, apiTestOptions{detector: plateDetector{empty: tt.empty}}, tt.files...)
			rec := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.status, decodeJSON[ErrorResponse](t, rec).Code)
		})
	}
}

func TestPreviewCrop_RateLimited(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.CropRateLimit = 0.001
	env := setupAPITestEnvironment(t, apiTestOptions{config: cfg, detector: plateDetector{empty: true}})

	var limited int
	for range cropRateBurst + 3 {
		rec := env.do(t, http.MethodGet, "/preview_crop/unlabeled/none.png", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited++
			assert.Equal(t, http.StatusTooManyRequests, decodeJSON[ErrorResponse](t, rec).Code)
		}
	}
	assert.Equal(t, 3, limited)
}

func TestTriageEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  string
		body    any
		newPath string
		gone    string
	}{
		{
			name:    "valid with label",
			target:  "/images/valid",
			body:    map[string]any{"path": "unlabeled/Goa/img001.jpg", "label": "ka-01 ab 1234"},
			newPath: "valid/Goa/KA01AB1234.jpg",
			gone:    "unlabeled/Goa/img001.jpg",
		},
		{
			name:    "valid keeps name",
			target:  "/images/valid",
			body:    map[string]any{"path": "unlabeled/Goa/img001.jpg"},
			newPath: "valid/Goa/img001.jpg",
			gone:    "unlabeled/Goa/img001.jpg",
		},
		{
			name:    "label accepts img alias",
			target:  "/images/label",
			body:    map[string]any{"img": "Goa/img001.jpg", "label": "MH12"},
			newPath: "valid/Goa/MH12.jpg",
			gone:    "unlabeled/Goa/img001.jpg",
		},
		{
			name:    "invalid",
			target:  "/images/invalid",
			body:    map[string]any{"path": "unlabeled/Goa/img001.jpg"},
			newPath: "invalid/Goa/img001.jpg",
			gone:    "unlabeled/Goa/img001.jpg",
		},
		{
			name:    "skip keeps nested directories",
			target:  "/images/skip",
			body:    map[string]any{"path": "unlabeled/Goa/Ambre_Colony/ABC123.jpg"},
			newPath: "skipped/Goa/Ambre_Colony/ABC123.jpg",
			gone:    "unlabeled/Goa/Ambre_Colony/ABC123.jpg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := setupAPITestEnvironment(t, apiTestOptions{},
				"unlabeled/Goa/img001.jpg",
				"unlabeled/Goa/Ambre_Colony/ABC123.jpg",
			)

			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decodeJSON[TriageResponse](t, rec)
			assert.True(t, resp.Success)
			assert.Equal(t, tt.newPath, resp.NewPath)
			assert.True(t, env.exists(tt.newPath))
			assert.False(t, env.exists(tt.gone))
			assert.Equal(t, 1, resp.Counts[media.Unlabeled])
		})
	}
}

func TestTriage_CountsDelta(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{},
		"unlabeled/a.jpg", "unlabeled/b.jpg", "valid/C1.jpg")

	before := decodeJSON[map[media.Category]int](t, env.do(t, http.MethodGet, "/images/counts", nil))

	rec := env.do(t, http.MethodPost, "/images/valid", map[string]any{"path": "unlabeled/a.jpg", "label": "ga07"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[TriageResponse](t, rec)

	after := decodeJSON[map[media.Category]int](t, env.do(t, http.MethodGet, "/images/counts", nil))
	assert.Equal(t, before[media.Unlabeled]-1, after[media.Unlabeled])
	assert.Equal(t, before[media.Valid]+1, after[media.Valid])
	assert.Equal(t, before[media.Invalid], after[media.Invalid])
	assert.Equal(t, before[media.Skipped], after[media.Skipped])
	assert.Equal(t, after[media.Unlabeled], resp.Counts[media.Unlabeled])
	assert.Equal(t, after[media.Valid], resp.Counts[media.Valid])

	list := decodeJSON[[]string](t, env.do(t, http.MethodGet, "/images/all", nil))
	assert.Contains(t, list, "valid/GA07.jpg")
	assert.NotContains(t, list, "unlabeled/a.jpg")
}

func TestTriage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		body   any
		status int
	}{
		{name: "traversal", target: "/images/valid", body: map[string]any{"path": "../../etc/passwd"}, status: http.StatusBadRequest},
		{name: "empty label", target: "/images/label", body: map[string]any{"path": "unlabeled/a.jpg", "label": "-- !"}, status: http.StatusBadRequest},
		{name: "missing label", target: "/images/label", body: map[string]any{"path": "unlabeled/a.jpg"}, status: http.StatusBadRequest},
		{name: "no path", target: "/images/skip", body: map[string]any{}, status: http.StatusBadRequest},
		{name: "malformed json", target: "/images/skip", body: `{"path":`, status: http.StatusBadRequest},
		{name: "missing source", target: "/images/invalid", body: map[string]any{"path": "unlabeled/gone.jpg"}, status: http.StatusNotFound},
		{name: "destination exists", target: "/images/valid", body: map[string]any{"path": "unlabeled/a.jpg", "label": "KA01"}, status: http.StatusConflict},
		{name: "invalid is terminal", target: "/images/valid", body: map[string]any{"path": "invalid/d.jpg"}, status: http.StatusConflict},
		{name: "valid cannot be skipped", target: "/images/skip", body: map[string]any{"path": "valid/KA01.jpg"}, status: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := setupAPITestEnvironment(t, apiTestOptions{},
				"unlabeled/a.jpg", "valid/KA01.jpg", "invalid/d.jpg")

			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decodeJSON[ErrorResponse](t, rec)
			assert.Equal(t, tt.status, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.CorrelationID)

			assert.True(t, env.exists("unlabeled/a.jpg"))
			assert.True(t, env.exists("valid/KA01.jpg"))
			assert.True(t, env.exists("invalid/d.jpg"))
		})
	}
}

func TestTriage_RepeatedRequestIsNotFound(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{}, "unlabeled/a.jpg")

	body := map[string]any{"path": "unlabeled/a.jpg"}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/images/skip", body).Code)

	rec := env.do(t, http.MethodPost, "/images/skip", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, env.exists("skipped/a.jpg"))
}

func TestServeImage(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{},
		"unlabeled/Goa/a.jpg", "valid/KA01.jpg", "valid/notes.txt")

	t.Run("raw bytes", func(t *testing.T) {
		t.Parallel()
		rec := env.do(t, http.MethodGet, "/unlabeled/Goa/a.jpg", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "unlabeled/Goa/a.jpg", rec.Body.String())
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing", target: "/valid/none.jpg", status: http.StatusNotFound},
		{name: "not an image", target: "/valid/notes.txt", status: http.StatusBadRequest},
		{name: "traversal", target: "/valid/..%2F..%2Fsecret.jpg", status: http.StatusBadRequest},
		{name: "another category", target: "/skipped/valid/KA01.jpg", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.BodyLimit = "1K"
	env := setupAPITestEnvironment(t, apiTestOptions{config: cfg}, "unlabeled/a.jpg")

	big := map[string]any{"path": "unlabeled/a.jpg", "label": string(bytes.Repeat([]byte("A"), 4096))}
	rec := env.do(t, http.MethodPost, "/images/label", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.True(t, env.exists("unlabeled/a.jpg"))
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	env := setupAPITestEnvironment(t, apiTestOptions{})

	rec := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decodeJSON[ErrorResponse](t, rec).Code)
}
