// Package triage files images between the category subtrees of a media root.
//
// Every operation validates its input before touching the filesystem, never
// overwrites an existing file, and moves atomically: the destination appears
// complete or not at all, and the source is removed only after the
// destination is in place. Mutations on one media root are serialized.
package triage

import (
	"fmt"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/observability/metrics"
	"github.com/platelab/labeler/internal/securefs"
)

// GetLogger returns the triage module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("triage")
}

// dirPerm is used for destination directories created on demand.
const dirPerm = 0o755

// Invalidator is notified after every successful move.
type Invalidator interface {
	Invalidate()
}

// Result describes a completed triage operation.
type Result struct {
	// OldPath and NewPath are media-root-relative wire paths.
	OldPath string
	NewPath string
	Method  securefs.MoveMethod
}

// Engine performs triage moves on one media root.
type Engine struct {
	fs          *securefs.SecureFS
	invalidator Invalidator
	recorder    metrics.Recorder
	log         logger.Logger

	// mu serializes every mutation on the root so check-then-move sequences
	// cannot interleave.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithInvalidator registers a cache to drop after every successful move.
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = metrics.OrNoOp(r) }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an engine over sfs.
func New(sfs *securefs.SecureFS, opts ...Option) *Engine {
	e := &Engine{
		fs:       sfs,
		recorder: metrics.NoOpRecorder{},
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MarkValid files the image at p into valid, preserving its subdirectory.
// When label is non-nil the filename stem is replaced by the sanitized label;
// otherwise the original filename is kept.
func (e *Engine) MarkValid(p string, label *string) (Result, error) {
	return e.run(metrics.OpMarkValid, p, media.Valid, label)
}

// MarkInvalid files the image at p into invalid, keeping its filename.
func (e *Engine) MarkInvalid(p string) (Result, error) {
	return e.run(metrics.OpMarkInvalid, p, media.Invalid, nil)
}

// MarkSkipped files the image at p into skipped, keeping its filename.
func (e *Engine) MarkSkipped(p string) (Result, error) {
	return e.run(metrics.OpMarkSkipped, p, media.Skipped, nil)
}

// UpdateLabel renames the image at p to the sanitized label and files it into
// valid. Applied to an image already in valid it renames in place.
func (e *Engine) UpdateLabel(p, label string) (Result, error) {
	return e.run(metrics.OpUpdateLabel, p, media.Valid, &label)
}

func (e *Engine) run(op, p string, to media.Category, label *string) (Result, error) {
	start := time.Now()
	res, err := e.move(p, to, label)
	e.recorder.RecordDuration(op, time.Since(start).Seconds())

	if err != nil {
		category := categoryFor(err)
		e.recorder.RecordOperation(op, metrics.StatusError)
		e.recorder.RecordError(op, string(category))
		e.log.Warn("triage operation rejected",
			logger.String("operation", op),
			logger.String("path", p),
			logger.Error(err))
		return Result{}, errors.New(err).
			Component("triage").
			Category(category).
			Context("operation", op).
			Context("target", string(to)).
			Build()
	}

	e.recorder.RecordOperation(op, metrics.StatusSuccess)
	if res.Method != "" {
		e.recorder.RecordOperation(metrics.OpMove, string(res.Method))
	}
	e.log.Info("image filed",
		logger.String("operation", op),
		logger.String("from", res.OldPath),
		logger.String("to", res.NewPath),
		logger.String("method", string(res.Method)),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

// move validates and plans the move, then performs it under the root lock.
// No filesystem mutation happens before every check has passed.
func (e *Engine) move(p string, to media.Category, label *string) (Result, error) {
	src, err := media.ParsePath(p)
	if err != nil {
		return Result{}, err
	}

	dst := src.WithCategory(to)
	if label != nil {
		stem, err := media.Sanitize(*label)
		if err != nil {
			return Result{}, err
		}
		dst = dst.WithStem(stem)
	}

	if !Allowed(src.Category, to) {
		return Result{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, src.Category, to)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.fs.Lstat(src.Path())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Result{}, fmt.Errorf("%w: %s", ErrSourceNotFound, src.Path())
	case err != nil:
		return Result{}, err
	case !info.Mode().IsRegular():
		return Result{}, fmt.Errorf("%w: %s is not a regular file", ErrInvalidPath, src.Path())
	}

	// Renaming a valid image to the label it already carries is a no-op.
	if dst.Path() == src.Path() {
		return Result{OldPath: src.Path(), NewPath: dst.Path()}, nil
	}

	if dir := path.Dir(dst.Path()); dir != "." {
		if err := e.fs.MkdirAll(dir, dirPerm); err != nil {
			return Result{}, err
		}
	}

	method, err := e.fs.Move(src.Path(), dst.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrSourceNotFound, src.Path())
		}
		return Result{}, err
	}

	if e.invalidator != nil {
		e.invalidator.Invalidate()
	}
	return Result{OldPath: src.Path(), NewPath: dst.Path(), Method: method}, nil
}
