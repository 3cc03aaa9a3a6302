// Package crop renders plate crops as JPEG. It keeps no state and never
// touches the filesystem.
package crop

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/platelab/labeler/internal/detector"
	"github.com/platelab/labeler/internal/errors"
)

// ErrNoBox is returned when there is no box to crop or it lies outside the image.
var ErrNoBox = errors.NewStd("no crop box")

// DefaultQuality is the JPEG quality used when Options.Quality is unset.
const DefaultQuality = 90

// Options tunes the rendered output.
type Options struct {
	// Padding grows the box on every side by this fraction of its width and
	// height before clamping, e.g. 0.1 for 10%.
	Padding float64
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// Render crops img to box, clamped to the image bounds, and returns the JPEG bytes.
func Render(img image.Image, box *detector.Box, opts Options) ([]byte, error) {
	if box == nil {
		return nil, ErrNoBox
	}
	r := Region(img.Bounds(), *box, opts.Padding)
	if r.Empty() {
		return nil, ErrNoBox
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Crop(img, r), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.New(fmt.Errorf("encode crop: %w", err)).
			Component("crop").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	return buf.Bytes(), nil
}

// Region returns box grown by padding and clamped to bounds.
func Region(bounds image.Rectangle, box detector.Box, padding float64) image.Rectangle {
	r := box.Rect().Canon()
	if padding > 0 {
		dx := int(float64(r.Dx())*padding + 0.5)
		dy := int(float64(r.Dy())*padding + 0.5)
		r = image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
	}
	return r.Intersect(bounds)
}
