package detector

import (
	"image"
	"image/color"
	_ "image/jpeg"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platelab/labeler/internal/httpclient"
)

const testEndpoint = "http://inference.test/detect"

func newMockRemote(t *testing.T) (*Remote, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client := httpclient.New(httpclient.Config{Transport: transport})
	r, err := NewRemote(testEndpoint, client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, transport
}

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255}) //nolint:gosec // bounded
		}
	}
	return img
}

func TestRemote_ResponseFormats(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want []Detection
	}{
		{
			name: "corner coordinates",
			body: `{"detections":[{"x0":4,"y0":6,"x1":30,"y1":20,"confidence":0.91,"class":0}]}`,
			want: []Detection{{Box: Box{X0: 4, Y0: 6, X1: 30, Y1: 20}, Confidence: 0.91}},
		},
		{
			name: "bbox array and score",
			body: `{"detections":[{"bbox":[1.2,2.7,10.4,12.6],"score":0.5}]}`,
			want: []Detection{{Box: Box{X0: 1, Y0: 2, X1: 10, Y1: 13}, Confidence: 0.5}},
		},
		{
			name: "xywh clamped to image",
			body: `{"detections":[{"x":50,"y":40,"width":30,"height":20,"confidence":0.7,"class":1}]}`,
			want: []Detection{{Box: Box{X0: 50, Y0: 40, X1: 64, Y1: 48}, Confidence: 0.7, ClassID: 1}},
		},
		{
			name: "malformed entries skipped",
			body: `{"detections":[{"confidence":0.9},{"x0":1,"y0":1,"x1":2,"y1":2},{"x0":100,"y0":100,"x1":120,"y1":120,"confidence":0.9}]}`,
			want: []Detection{},
		},
		{
			name: "no detections key",
			body: `{"status":"ok"}`,
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, transport := newMockRemote(t)
			transport.RegisterResponder(http.MethodPost, testEndpoint,
				httpmock.NewStringResponder(http.StatusOK, tc.body))

			got, err := r.Detect(t.Context(), testImage())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRemote_SendsMultipartImage(t *testing.T) {
	t.Parallel()
	r, transport := newMockRemote(t)

	transport.RegisterResponder(http.MethodPost, testEndpoint, func(req *http.Request) (*http.Response, error) {
		file, header, err := req.FormFile("image")
		if err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"no image"}`), nil
		}
		defer func() { _ = file.Close() }()
		decoded, _, err := image.Decode(file)
		if err != nil || header.Filename != "image.jpg" {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"bad image"}`), nil
		}
		b := decoded.Bounds()
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"detections": []map[string]any{
				{"x0": 0, "y0": 0, "x1": b.Dx(), "y1": b.Dy(), "confidence": 0.8},
			},
		})
	})

	got, err := r.Detect(t.Context(), testImage())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Box{X0: 0, Y0: 0, X1: 64, Y1: 48}, got[0].Box)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestRemote_Failures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		responder httpmock.Responder
	}{
		{name: "server error", responder: httpmock.NewStringResponder(http.StatusInternalServerError, "oops")},
		{name: "invalid json", responder: httpmock.NewStringResponder(http.StatusOK, "{not json")},
		{name: "error field", responder: httpmock.NewStringResponder(http.StatusOK, `{"error":"model not loaded"}`)},
		{name: "transport error", responder: httpmock.NewErrorResponder(http.ErrHandlerTimeout)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, transport := newMockRemote(t)
			transport.RegisterResponder(http.MethodPost, testEndpoint, tc.responder)

			_, err := r.Detect(t.Context(), testImage())
			require.ErrorIs(t, err, ErrDetectionFailed)
		})
	}
}

func TestNewRemote_RejectsBadURL(t *testing.T) {
	t.Parallel()
	client := httpclient.New(httpclient.Config{})
	defer client.Close()

	for _, u := range []string{"", "localhost:9000", "ftp://host/x", "http://"} {
		_, err := NewRemote(u, client)
		assert.Error(t, err, u)
	}
}
