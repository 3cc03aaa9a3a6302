package detector

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput_Rows(t *testing.T) {
	t.Parallel()

	data := []float32{
		10, 20, 110, 60, 0.9, 0,
		0, 0, 5, 5, 0.01, 0, // below minScore
		30, 30, 50, 50, 0.7, 1,
	}
	dets, err := parseOutput(data, 3, 6, 640, 640)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, rawDetection{x0: 10, y0: 20, x1: 110, y1: 60, score: float64(float32(0.9)), class: 0}, dets[0])
	assert.Equal(t, 1, dets[1].class)
}

func TestParseOutput_SixRowsReadAsRows(t *testing.T) {
	t.Parallel()

	data := make([]float32, 36)
	copy(data, []float32{10, 20, 110, 60, 0.9, 0})
	copy(data[30:], []float32{200, 200, 260, 230, 0.6, 0})

	dets, err := parseOutput(data, 6, 6, 640, 640)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, rawDetection{x0: 10, y0: 20, x1: 110, y1: 60, score: float64(float32(0.9)), class: 0}, dets[0])
	assert.InDelta(t, 200, dets[1].x0, 1e-9)
}

func TestParseOutput_ChannelsFirst(t *testing.T) {
	t.Parallel()

	// 4 box channels + 2 classes over 8 anchors, laid out channel-major.
	// Anchors 3..7 score zero and are dropped.
	const n = 8
	data := make([]float32, 6*n)
	set := func(i int, cx, cy, w, h, s0, s1 float32) {
		for c, v := range []float32{cx, cy, w, h, s0, s1} {
			data[c*n+i] = v
		}
	}
	set(0, 100, 100, 20, 10, 0.8, 0.1)
	set(1, 200, 200, 40, 20, 0.02, 0.01)
	set(2, 300, 300, 60, 30, 0.1, 0.6)

	dets, err := parseOutput(data, 6, n, 640, 640)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.InDelta(t, 90, dets[0].x0, 1e-6)
	assert.InDelta(t, 95, dets[0].y0, 1e-6)
	assert.InDelta(t, 110, dets[0].x1, 1e-6)
	assert.InDelta(t, 105, dets[0].y1, 1e-6)
	assert.Equal(t, 0, dets[0].class)
	assert.Equal(t, 1, dets[1].class)
	assert.InDelta(t, 0.6, dets[1].score, 1e-6)
}

func TestParseOutput_NormalizedCoordinates(t *testing.T) {
	t.Parallel()

	data := []float32{0.25, 0.5, 0.75, 1.0, 0.9, 0}
	dets, err := parseOutput(data, 1, 6, 640, 320)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 160, dets[0].x0, 1e-6)
	assert.InDelta(t, 160, dets[0].y0, 1e-6)
	assert.InDelta(t, 480, dets[0].x1, 1e-6)
	assert.InDelta(t, 320, dets[0].y1, 1e-6)
}

func TestParseOutput_Errors(t *testing.T) {
	t.Parallel()

	_, err := parseOutput(make([]float32, 4), 2, 6, 640, 640)
	require.ErrorIs(t, err, ErrDetectionFailed)

	_, err = parseOutput(make([]float32, 16), 4, 4, 640, 640)
	require.ErrorIs(t, err, ErrDetectionFailed)
}

func TestNMS(t *testing.T) {
	t.Parallel()

	dets := []rawDetection{
		{x0: 0, y0: 0, x1: 10, y1: 10, score: 0.6},
		{x0: 1, y0: 1, x1: 11, y1: 11, score: 0.9},
		{x0: 50, y0: 50, x1: 60, y1: 60, score: 0.5},
		{x0: 1, y0: 1, x1: 11, y1: 11, score: 0.4, class: 1},
	}
	kept := nms(dets, 0.45)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].score, 1e-9)
	assert.InDelta(t, 0.5, kept[1].score, 1e-9)
	assert.Equal(t, 1, kept[2].class)
}

func TestLetterboxUnmap(t *testing.T) {
	t.Parallel()

	// 200x100 source into 100x100: scale 0.5, 25px vertical padding.
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	lb := letterbox(img, 100, 100)
	assert.InDelta(t, 0.5, lb.scale, 1e-9)
	assert.Equal(t, 0, lb.padX)
	assert.Equal(t, 25, lb.padY)

	dets := lb.unmap([]rawDetection{
		{x0: 10, y0: 35, x1: 60, y1: 45, score: 0.8},
		{x0: 90, y0: 70, x1: 120, y1: 90, score: 0.7}, // clamped to the source
		{x0: 0, y0: 0, x1: 50, y1: 20, score: 0.9},    // entirely in padding
	})
	require.Len(t, dets, 2)
	assert.Equal(t, Box{X0: 20, Y0: 20, X1: 120, Y1: 40}, dets[0].Box)
	assert.Equal(t, Box{X0: 180, Y0: 90, X1: 200, Y1: 100}, dets[1].Box)

	buf := make([]float32, 100*100*3)
	lb.fill(buf)
	assert.InDelta(t, float32(letterboxGray)/255, buf[0], 1e-6)
}
