// Package detector locates license plates in images.
//
// A Detector returns every candidate box it finds; DetectPlate reduces the
// candidates to the single best plate. Backends: an embedded TFLite model,
// a remote inference service over HTTP, and "none" for running without a model.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/observability/metrics"
)

// GetLogger returns the detector module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("detector")
}

var (
	// ErrNotFound is returned when no plate meets the confidence threshold.
	ErrNotFound = errors.NewStd("no plate detected")

	// ErrDetectionFailed wraps model, transport and decoding failures.
	ErrDetectionFailed = errors.NewStd("detection failed")
)

// Box is an axis-aligned rectangle in source image pixels. X1 and Y1 are exclusive.
type Box struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X0, b.Y0, b.X1, b.Y1)
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.X1 <= b.X0 || b.Y1 <= b.Y0
}

// Detection is one candidate plate.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

// Detector finds plate candidates in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	// Name identifies the backend in logs and metrics.
	Name() string
	Close() error
}

// Best returns the highest-confidence detection of classID with confidence
// at or above threshold. Ties keep the earlier detection.
func Best(dets []Detection, threshold float64, classID int) (Detection, bool) {
	var (
		best  Detection
		found bool
	)
	for _, d := range dets {
		if d.ClassID != classID || d.Confidence < threshold || d.Box.Empty() {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best, found = d, true
		}
	}
	return best, found
}

// Params selects which detections count as a plate.
type Params struct {
	Threshold float64
	ClassID   int
}

// DetectPlate runs d on img and returns the best plate. It fails with
// ErrNotFound when nothing qualifies and ErrDetectionFailed when the backend errs.
func DetectPlate(ctx context.Context, d Detector, img image.Image, p Params, rec metrics.Recorder) (Detection, error) {
	rec = metrics.OrNoOp(rec)
	start := time.Now()

	dets, err := d.Detect(ctx, img)
	rec.RecordDuration(metrics.OpDetect, time.Since(start).Seconds())
	if err != nil {
		rec.RecordOperation(metrics.OpDetect, metrics.StatusError)
		if ctx.Err() != nil {
			return Detection{}, ctx.Err()
		}
		rec.RecordError(metrics.OpDetect, string(errors.CategoryModelInference))
		if !errors.Is(err, ErrDetectionFailed) {
			err = errors.Join(ErrDetectionFailed, err)
		}
		return Detection{}, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelInference).
			Context("backend", d.Name()).
			Build()
	}

	best, ok := Best(dets, p.Threshold, p.ClassID)
	if !ok {
		rec.RecordOperation(metrics.OpDetect, metrics.StatusNotFound)
		GetLogger().Debug("no plate above threshold",
			logger.String("backend", d.Name()),
			logger.Int("candidates", len(dets)),
			logger.Float64("threshold", p.Threshold))
		return Detection{}, ErrNotFound
	}
	rec.RecordOperation(metrics.OpDetect, metrics.StatusSuccess)
	return best, nil
}

// None is the backend used when no model is configured. It never finds a plate.
type None struct{}

func (None) Detect(context.Context, image.Image) ([]Detection, error) { return nil, nil }
func (None) Name() string                                             { return BackendNone }
func (None) Close() error                                             { return nil }
