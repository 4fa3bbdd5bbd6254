package imaging

import (
	"fmt"
	"image"
	"slices"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// Seam measures the color step across one tile boundary line.
type Seam struct {
	// Axis is "vertical" for a boundary between columns and "horizontal"
	// for one between rows.
	Axis string `json:"axis"`

	// Position is the first column (or row) after the boundary.
	Position int `json:"position"`

	// MeanDeltaE is the mean CIE76 distance between the pixel pairs
	// straddling the boundary.
	MeanDeltaE float64 `json:"mean_delta_e"`

	// Ratio compares MeanDeltaE to the image-wide baseline.
	Ratio float64 `json:"ratio"`

	Flagged bool `json:"flagged"`
}

// SeamReport summarises how visible tile boundaries are in a rendered
// image.
type SeamReport struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	BaselineDeltaE float64 `json:"baseline_delta_e"`
	Threshold      float64 `json:"threshold"`
	WorstRatio     float64 `json:"worst_ratio"`
	FlaggedCount   int     `json:"flagged_count"`
	Seams          []Seam  `json:"seams"`
}

// minBaseline keeps ratios finite on flat images.
const minBaseline = 1e-3

// MeasureSeams compares the Lab color step across every tile boundary of
// rects with the mean step between any two neighbouring pixels. Boundaries
// whose ratio exceeds threshold are flagged.
//
// Boundaries are taken at both edges of each overlap band: where a tile
// starts and where its predecessor ends.
func MeasureSeams(img image.Image, rects []tiling.Rect, threshold float64) (*SeamReport, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %g", threshold)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("image %dx%d is too small to measure", w, h)
	}

	lab := make([]colorful.Color, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, _ := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			lab[y*w+x] = c
		}
	}
	at := func(x, y int) colorful.Color { return lab[y*w+x] }

	var sum float64
	var n int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x+1 < w {
				sum += at(x, y).DistanceLab(at(x+1, y))
				n++
			}
			if y+1 < h {
				sum += at(x, y).DistanceLab(at(x, y+1))
				n++
			}
		}
	}
	baseline := sum / float64(n)

	report := &SeamReport{
		Width:          w,
		Height:         h,
		BaselineDeltaE: baseline,
		Threshold:      threshold,
		Seams:          []Seam{},
	}
	add := func(axis string, pos int, mean float64) {
		s := Seam{Axis: axis, Position: pos, MeanDeltaE: mean, Ratio: mean / max(baseline, minBaseline)}
		s.Flagged = s.Ratio > threshold
		if s.Flagged {
			report.FlaggedCount++
		}
		report.WorstRatio = max(report.WorstRatio, s.Ratio)
		report.Seams = append(report.Seams, s)
	}

	xs, ys := boundaries(rects, w, h)
	for _, x := range xs {
		var d float64
		for y := 0; y < h; y++ {
			d += at(x-1, y).DistanceLab(at(x, y))
		}
		add("vertical", x, d/float64(h))
	}
	for _, y := range ys {
		var d float64
		for x := 0; x < w; x++ {
			d += at(x, y-1).DistanceLab(at(x, y))
		}
		add("horizontal", y, d/float64(w))
	}
	return report, nil
}

// boundaries returns the sorted interior column and row positions where a
// tile starts or ends.
func boundaries(rects []tiling.Rect, w, h int) ([]int, []int) {
	var xs, ys []int
	for _, r := range rects {
		for _, x := range []int{r.X, r.Right()} {
			if x > 0 && x < w {
				xs = append(xs, x)
			}
		}
		for _, y := range []int{r.Y, r.Bottom()} {
			if y > 0 && y < h {
				ys = append(ys, y)
			}
		}
	}
	slices.Sort(xs)
	slices.Sort(ys)
	return slices.Compact(xs), slices.Compact(ys)
}
