package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/disintegration/imaging"

	"github.com/platelab/labeler/internal/httpclient"
	"github.com/platelab/labeler/internal/logger"
)

// maxResponseBytes caps the inference response read into memory.
const maxResponseBytes = 1 << 20

// Remote posts images to an inference service and parses its JSON reply.
//
// The request is multipart/form-data with the JPEG-encoded image in the
// "image" field. The reply carries a "detections" array whose entries give the
// box as x0/y0/x1/y1, as a four-element "bbox" (or "xyxy") array, or as
// x/y/width/height, plus "confidence" and an optional "class".
type Remote struct {
	endpoint string
	client   *httpclient.Client
}

// NewRemote creates a remote backend posting to endpoint.
func NewRemote(endpoint string, client *httpclient.Client) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid detector URL %q", endpoint)
	}
	r := &Remote{endpoint: endpoint, client: client}
	client.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		fields := []logger.Field{logger.String("host", req.URL.Host), logger.Duration("elapsed", elapsed)}
		if err != nil {
			GetLogger().Debug("inference request failed", append(fields, logger.Error(err))...)
			return
		}
		GetLogger().Debug("inference request", append(fields, logger.Int("status", resp.StatusCode))...)
	})
	return r, nil
}

// Name implements Detector.
func (r *Remote) Name() string { return BackendHTTP }

// Close implements Detector.
func (r *Remote) Close() error {
	r.client.Close()
	return nil
}

// Detect implements Detector.
func (r *Remote) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	body, contentType, err := encodeRequest(img)
	if err != nil {
		return nil, err
	}

	resp, release, err := r.client.Post(ctx, r.endpoint, contentType, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}
	defer release()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: inference service returned %s", ErrDetectionFailed, resp.Status)
	}

	obj, err := jason.NewObjectFromReader(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrDetectionFailed, err)
	}
	return parseRemoteResponse(obj, img.Bounds())
}

func encodeRequest(img image.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "image.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}
	if err := imaging.Encode(part, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, "", fmt.Errorf("%w: encode image: %w", ErrDetectionFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// parseRemoteResponse converts the "detections" array. A reply without the
// key means nothing was found. Malformed entries are skipped.
func parseRemoteResponse(obj *jason.Object, bounds image.Rectangle) ([]Detection, error) {
	if msg, err := obj.GetString("error"); err == nil && msg != "" {
		return nil, fmt.Errorf("%w: inference service: %s", ErrDetectionFailed, msg)
	}
	entries, err := obj.GetObjectArray("detections")
	if err != nil {
		return nil, nil
	}

	dets := make([]Detection, 0, len(entries))
	for _, e := range entries {
		box, ok := remoteBox(e)
		if !ok {
			continue
		}
		r := box.Rect().Intersect(bounds)
		if r.Empty() {
			continue
		}
		conf, err := e.GetFloat64("confidence")
		if err != nil {
			if conf, err = e.GetFloat64("score"); err != nil {
				continue
			}
		}
		class, _ := e.GetInt64("class")
		dets = append(dets, Detection{
			Box:        Box{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y},
			Confidence: conf,
			ClassID:    int(class),
		})
	}
	return dets, nil
}

func remoteBox(e *jason.Object) (Box, bool) {
	for _, key := range []string{"bbox", "xyxy"} {
		if v, err := e.GetFloat64Array(key); err == nil && len(v) == 4 {
			return Box{X0: int(v[0]), Y0: int(v[1]), X1: int(v[2] + 0.5), Y1: int(v[3] + 0.5)}, true
		}
	}

	if c, ok := floats(e, "x0", "y0", "x1", "y1"); ok {
		return Box{X0: int(c[0]), Y0: int(c[1]), X1: int(c[2] + 0.5), Y1: int(c[3] + 0.5)}, true
	}
	if c, ok := floats(e, "x", "y", "width", "height"); ok {
		return Box{X0: int(c[0]), Y0: int(c[1]), X1: int(c[0] + c[2] + 0.5), Y1: int(c[1] + c[3] + 0.5)}, true
	}
	return Box{}, false
}

func floats(e *jason.Object, keys ...string) ([]float64, bool) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, err := e.GetFloat64(k)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
