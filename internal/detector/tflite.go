package detector

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/go-tflite"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/observability/metrics"
)

const (
	// letterboxGray is the padding colour YOLO exports are trained with.
	letterboxGray = 114
	// nmsIoU is the overlap above which a weaker box is suppressed.
	nmsIoU = 0.45
	// minScore drops candidates before NMS; the caller applies the real threshold.
	minScore = 0.05
)

// TFLite runs a YOLO-style plate model in-process. The interpreter is not
// reentrant, so Detect calls are serialized.
type TFLite struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	width       int
	height      int
	threads     int
}

// NewTFLite loads the model at modelPath. threads <= 0 uses the number of
// physical cores.
func NewTFLite(modelPath string, threads int, rec metrics.Recorder) (*TFLite, error) {
	rec = metrics.OrNoOp(rec)
	start := time.Now()

	t, err := loadTFLite(modelPath, threads)
	rec.RecordDuration(metrics.OpModelLoad, time.Since(start).Seconds())
	if err != nil {
		rec.RecordOperation(metrics.OpModelLoad, metrics.StatusError)
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}
	rec.RecordOperation(metrics.OpModelLoad, metrics.StatusSuccess)

	GetLogger().Info("plate model loaded",
		logger.String("model", modelPath),
		logger.Int("input_width", t.width),
		logger.Int("input_height", t.height),
		logger.Int("threads", t.threads),
		logger.Duration("elapsed", time.Since(start)))
	return t, nil
}

func loadTFLite(modelPath string, threads int) (*TFLite, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path is required for the tflite backend")
	}
	data, err := os.ReadFile(modelPath) //nolint:gosec // operator-configured path
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", modelPath)
	}

	threads = threadCount(threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 || input.Dim(3) != 3 {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("unsupported model input, want [1,H,W,3]")
	}

	return &TFLite{
		model:       model,
		interpreter: interpreter,
		height:      input.Dim(1),
		width:       input.Dim(2),
		threads:     threads,
	}, nil
}

// threadCount resolves the configured thread count against the host.
func threadCount(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	if cores := cpuid.CPU.PhysicalCores; cores > 0 {
		return min(cores, available)
	}
	return available
}

// Name implements Detector.
func (t *TFLite) Name() string { return BackendTFLite }

// Detect implements Detector.
func (t *TFLite) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lb := letterbox(img, t.width, t.height)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interpreter == nil {
		return nil, fmt.Errorf("%w: detector closed", ErrDetectionFailed)
	}

	input := t.interpreter.GetInputTensor(0)
	dst := input.Float32s()
	if dst == nil {
		return nil, fmt.Errorf("%w: model input is not float32", ErrDetectionFailed)
	}
	lb.fill(dst)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("%w: invoke failed with status %v", ErrDetectionFailed, status)
	}

	output := t.interpreter.GetOutputTensor(0)
	if output == nil || output.NumDims() != 3 {
		return nil, fmt.Errorf("%w: unsupported model output", ErrDetectionFailed)
	}
	raw := output.Float32s()
	if raw == nil {
		return nil, fmt.Errorf("%w: model output is not float32", ErrDetectionFailed)
	}

	dets, err := parseOutput(raw, output.Dim(1), output.Dim(2), t.width, t.height)
	if err != nil {
		return nil, err
	}
	return lb.unmap(nms(dets, nmsIoU)), nil
}

// Close releases the interpreter and model.
func (t *TFLite) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	return nil
}

// letterboxed is a source image scaled to fit the model input with its aspect
// ratio kept and the remainder padded.
type letterboxed struct {
	canvas *image.NRGBA
	scale  float64
	padX   int
	padY   int
	src    image.Rectangle
}

func letterbox(img image.Image, width, height int) letterboxed {
	b := img.Bounds()
	fitted := imaging.Fit(img, width, height, imaging.Linear)
	fb := fitted.Bounds()

	padX := (width - fb.Dx()) / 2
	padY := (height - fb.Dy()) / 2
	canvas := imaging.New(width, height, color.NRGBA{R: letterboxGray, G: letterboxGray, B: letterboxGray, A: 255})
	canvas = imaging.Paste(canvas, fitted, image.Pt(padX, padY))

	return letterboxed{
		canvas: canvas,
		scale:  float64(fb.Dx()) / float64(b.Dx()),
		padX:   padX,
		padY:   padY,
		src:    b,
	}
}

// fill writes the canvas as normalized RGB in HWC order.
func (l letterboxed) fill(dst []float32) {
	pix := l.canvas.Pix
	n := 0
	for i := 0; i+3 < len(pix) && n+2 < len(dst); i += 4 {
		dst[n] = float32(pix[i]) / 255
		dst[n+1] = float32(pix[i+1]) / 255
		dst[n+2] = float32(pix[i+2]) / 255
		n += 3
	}
}

// unmap converts boxes from model input pixels to source pixels, clamped to
// the source bounds.
func (l letterboxed) unmap(dets []rawDetection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		box := Box{
			X0: l.src.Min.X + int((d.x0-float64(l.padX))/l.scale),
			Y0: l.src.Min.Y + int((d.y0-float64(l.padY))/l.scale),
			X1: l.src.Min.X + int((d.x1-float64(l.padX))/l.scale+0.5),
			Y1: l.src.Min.Y + int((d.y1-float64(l.padY))/l.scale+0.5),
		}
		r := box.Rect().Intersect(l.src)
		box = Box{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y}
		if box.Empty() {
			continue
		}
		out = append(out, Detection{Box: box, Confidence: d.score, ClassID: d.class})
	}
	return out
}
