// Package preview serves image details and on-demand plate crops.
// Crops run decode, detect and render in a bounded worker pool and are never
// written to disk.
package preview

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io/fs"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/platelab/labeler/internal/crop"
	"github.com/platelab/labeler/internal/detector"
	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/observability/metrics"
	"github.com/platelab/labeler/internal/securefs"
)

// GetLogger returns the preview module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("preview")
}

// Details describes one image for the labeling UI.
type Details struct {
	Path      string         `json:"path"`
	Category  media.Category `json:"category"`
	Label     string         `json:"label"`
	CropPath  string         `json:"cropPath"`
	ImagePath string         `json:"imagePath"`
}

// Config configures a Service.
type Config struct {
	// Workers bounds concurrent crop pipelines. Zero uses GOMAXPROCS.
	Workers  int
	Params   detector.Params
	Crop     crop.Options
	Recorder metrics.Recorder
}

// Service produces image details and plate crops.
type Service struct {
	fs       *securefs.SecureFS
	detector detector.Detector
	params   detector.Params
	crop     crop.Options
	sem      *semaphore.Weighted
	recorder metrics.Recorder
}

// New creates a preview service.
func New(sfs *securefs.SecureFS, d detector.Detector, cfg Config) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if d == nil {
		d = detector.None{}
	}
	return &Service{
		fs:       sfs,
		detector: d,
		params:   cfg.Params,
		crop:     cfg.Crop,
		sem:      semaphore.NewWeighted(int64(workers)),
		recorder: metrics.OrNoOp(cfg.Recorder),
	}
}

// Details returns the metadata of the image at p.
func (s *Service) Details(p string) (Details, error) {
	rec, err := s.resolve(p)
	if err != nil {
		return Details{}, err
	}
	return Details{
		Path:      rec.Path(),
		Category:  rec.Category,
		Label:     rec.Label,
		CropPath:  "/preview_crop/" + rec.Path(),
		ImagePath: "/" + rec.Path(),
	}, nil
}

// Crop detects the plate in the image at p and returns it as JPEG.
// It fails with detector.ErrNotFound when no plate qualifies.
func (s *Service) Crop(ctx context.Context, p string) ([]byte, error) {
	rec, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	img, err := s.decode(rec)
	if err != nil {
		return nil, err
	}

	det, err := detector.DetectPlate(ctx, s.detector, img, s.params, s.recorder)
	if err != nil {
		return nil, err
	}

	data, err := crop.Render(img, &det.Box, s.crop)
	if err != nil {
		s.recorder.RecordOperation(metrics.OpCrop, metrics.StatusError)
		return nil, err
	}
	s.recorder.RecordOperation(metrics.OpCrop, metrics.StatusSuccess)
	s.recorder.RecordDuration(metrics.OpCrop, time.Since(start).Seconds())

	GetLogger().Debug("plate crop rendered",
		logger.String("path", rec.Path()),
		logger.Float64("confidence", det.Confidence),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", time.Since(start)))
	return data, nil
}

// resolve parses p and checks that it names an existing regular file.
func (s *Service) resolve(p string) (media.ImageRecord, error) {
	rec, err := media.ParsePath(p)
	if err != nil {
		return media.ImageRecord{}, err
	}
	info, err := s.fs.Lstat(rec.Path())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return media.ImageRecord{}, fmt.Errorf("%w: %s", media.ErrSourceNotFound, rec.Path())
	case err != nil:
		return media.ImageRecord{}, err
	case !info.Mode().IsRegular():
		return media.ImageRecord{}, fmt.Errorf("%w: %s is not a regular file", media.ErrInvalidPath, rec.Path())
	}
	return rec, nil
}

func (s *Service) decode(rec media.ImageRecord) (image.Image, error) {
	f, err := s.fs.Open(rec.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", media.ErrSourceNotFound, rec.Path())
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		s.recorder.RecordOperation(metrics.OpDecode, metrics.StatusError)
		return nil, errors.New(fmt.Errorf("%w: decode %s: %w", detector.ErrDetectionFailed, rec.Path(), err)).
			Component("preview").
			Category(errors.CategoryImageProcessing).
			FileContext(rec.Path(), 0).
			Build()
	}
	s.recorder.RecordOperation(metrics.OpDecode, metrics.StatusSuccess)
	return img, nil
}
