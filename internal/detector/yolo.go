package detector

import (
	"fmt"
	"slices"
)

// rawDetection is a candidate in model input pixels.
type rawDetection struct {
	x0, y0, x1, y1 float64
	score          float64
	class          int
}

func (r rawDetection) area() float64 {
	return max(0, r.x1-r.x0) * max(0, r.y1-r.y0)
}

// parseOutput decodes a [1, d1, d2] output tensor. Two layouts are supported:
//
//	[1, N, 6]    rows of x0, y0, x1, y1, score, class (exports with NMS built in)
//	[1, 4+C, N]  YOLOv8 raw head: cx, cy, w, h then one score per class
//
// Coordinates normalized to [0,1] are scaled to the input size.
func parseOutput(data []float32, d1, d2, width, height int) ([]rawDetection, error) {
	if len(data) < d1*d2 {
		return nil, fmt.Errorf("%w: output holds %d values, want %d", ErrDetectionFailed, len(data), d1*d2)
	}
	var dets []rawDetection
	switch {
	case d2 == 6:
		// [1,6,6] is read as six rows. The same shape as a raw head would
		// mean two classes and six anchors, which no real input size yields.
		dets = parseRows(data, d1)
	case d1 >= 5 && d1 < d2:
		dets = parseChannelsFirst(data, d1, d2)
	default:
		return nil, fmt.Errorf("%w: unsupported output shape [1,%d,%d]", ErrDetectionFailed, d1, d2)
	}

	if normalized(dets) {
		for i := range dets {
			dets[i].x0 *= float64(width)
			dets[i].x1 *= float64(width)
			dets[i].y0 *= float64(height)
			dets[i].y1 *= float64(height)
		}
	}
	return dets, nil
}

func parseRows(data []float32, n int) []rawDetection {
	dets := make([]rawDetection, 0, n)
	for i := range n {
		row := data[i*6 : i*6+6]
		if float64(row[4]) < minScore {
			continue
		}
		dets = append(dets, rawDetection{
			x0:    float64(row[0]),
			y0:    float64(row[1]),
			x1:    float64(row[2]),
			y1:    float64(row[3]),
			score: float64(row[4]),
			class: int(row[5]),
		})
	}
	return dets
}

func parseChannelsFirst(data []float32, channels, n int) []rawDetection {
	at := func(c, i int) float64 { return float64(data[c*n+i]) }

	var dets []rawDetection
	for i := range n {
		class, score := 0, 0.0
		for c := 4; c < channels; c++ {
			if s := at(c, i); s > score {
				class, score = c-4, s
			}
		}
		if score < minScore {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		dets = append(dets, rawDetection{
			x0:    cx - w/2,
			y0:    cy - h/2,
			x1:    cx + w/2,
			y1:    cy + h/2,
			score: score,
			class: class,
		})
	}
	return dets
}

// normalized reports whether every coordinate lies in [0, 1].
func normalized(dets []rawDetection) bool {
	if len(dets) == 0 {
		return false
	}
	for _, d := range dets {
		if max(d.x0, d.y0, d.x1, d.y1) > 1.0 {
			return false
		}
	}
	return true
}

// nms keeps the strongest box of every overlapping group of the same class.
func nms(dets []rawDetection, threshold float64) []rawDetection {
	sorted := slices.Clone(dets)
	slices.SortStableFunc(sorted, func(a, b rawDetection) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	kept := make([]rawDetection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.class == d.class && iou(k, d) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b rawDetection) float64 {
	inter := rawDetection{
		x0: max(a.x0, b.x0),
		y0: max(a.y0, b.y0),
		x1: min(a.x1, b.x1),
		y1: min(a.y1, b.y1),
	}.area()
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
