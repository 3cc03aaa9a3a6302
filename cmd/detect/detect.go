// Package detect implements the labeler detect command.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/platelab/labeler/internal/app"
	"github.com/platelab/labeler/internal/crop"
	"github.com/platelab/labeler/internal/detector"
	"github.com/platelab/labeler/internal/errors"
)

// Result is printed by the detect command.
type Result struct {
	Image     string              `json:"image"`
	Backend   string              `json:"backend"`
	Found     bool                `json:"found"`
	Detection *detector.Detection `json:"detection,omitempty"`
	CropFile  string              `json:"crop_file,omitempty"`
}

// Command creates the detect command.
func Command(ctx *app.Context) *cobra.Command {
	var cropOut string

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Run the configured plate detector on one image",
		Long:  "Detect the license plate in an image and print the best box as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := ctx.NewDetector(nil)
			if err != nil {
				return err
			}
			defer func() { _ = det.Close() }()

			res, err := Run(cmd.Context(), det, args[0], ctx.DetectorParams(), ctx.CropOptions(), cropOut)
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&cropOut, "crop", "o", "", "Also write the plate crop as JPEG to this file")
	return cmd
}

// Run detects the plate in the image file at path. A missing plate is a
// result with Found unset, not an error.
func Run(ctx context.Context, d detector.Detector, path string, params detector.Params, opts crop.Options, cropOut string) (Result, error) {
	img, err := decodeFile(path)
	if err != nil {
		return Result{}, err
	}

	res := Result{Image: path, Backend: d.Name()}
	best, err := detector.DetectPlate(ctx, d, img, params, nil)
	switch {
	case errors.Is(err, detector.ErrNotFound):
		return res, nil
	case err != nil:
		return Result{}, err
	}
	res.Found = true
	res.Detection = &best

	if cropOut != "" {
		data, err := crop.Render(img, &best.Box, opts)
		if err != nil {
			return Result{}, err
		}
		if err := os.WriteFile(cropOut, data, 0o644); err != nil { //nolint:gosec // operator-chosen output file
			return Result{}, fmt.Errorf("write crop: %w", err)
		}
		res.CropFile = cropOut
	}
	return res, nil
}

// Print writes res as indented JSON.
func Print(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied image path
	if err != nil {
		return nil, errors.New(fmt.Errorf("open image: %w", err)).
			Component("detect").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: decode %s: %w", detector.ErrDetectionFailed, path, err)).
			Component("detect").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	return img, nil
}
