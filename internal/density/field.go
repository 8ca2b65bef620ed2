// Package density holds the per-pixel stippling density of an image and the
// row-wise cumulative tables that turn region integrals into a handful of
// lookups.
//
// For a row y the tables are
//
//	P(x) = Σ_{i<x} d(i)        (row prefix sum, P(0) = 0, P(W) = row total)
//	Q(x) = Σ_{j≤x} P(j)        (prefix sum of P)
//
// and for any half-open span [x0, x1) of that row
//
//	Σ d     = P(x1) - P(x0)
//	Σ i·d   = (x1·P(x1) - Q(x1)) - (x0·P(x0) - Q(x0))
//
// Both tables are stored in float64: Q grows quadratically with the row
// width and the moment formula subtracts two large, nearly equal values.
package density

import (
	"errors"
	"fmt"

	"github.com/gogpu/stipple/internal/parallel"
)

const (
	// Floor is the smallest density a pixel can have. White pixels keep a
	// little weight so that no region ever integrates to zero.
	Floor = 1e-2

	// VisibleThreshold is the density at or above which a pixel counts as
	// part of the drawing. Seeds are only placed on visible pixels and dots
	// on invisible pixels are dropped at export.
	VisibleThreshold = 2e-2
)

// ErrEmpty is returned when a field is built from a zero-sized image.
var ErrEmpty = errors.New("density: empty image")

// Field is an immutable W×H density grid with its P and Q tables.
// It is safe for concurrent readers.
type Field struct {
	width, height int

	d []float64 // W×H
	p []float64 // (W+1)×H
	q []float64 // (W+1)×H

	total float64
}

// Build computes d = max(Floor, 1 - gray) for every pixel of a
// single-channel image with values in [0, 1] (0 is black) and derives the
// cumulative tables. Rows are processed in parallel on pool, which may be
// nil.
func Build(width, height int, gray []float32, pool *parallel.WorkerPool) (*Field, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmpty, width, height)
	}
	if len(gray) < width*height {
		return nil, fmt.Errorf("density: %d samples for a %dx%d image", len(gray), width, height)
	}

	stride := width + 1
	f := &Field{
		width:  width,
		height: height,
		d:      make([]float64, width*height),
		p:      make([]float64, stride*height),
		q:      make([]float64, stride*height),
	}

	pool.ForRange(height, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			f.buildRow(y, gray[y*width:(y+1)*width])
		}
	})

	for y := range height {
		f.total += f.p[y*stride+width]
	}
	return f, nil
}

// buildRow fills row y of d, P and Q. The accumulation is strictly left to
// right.
func (f *Field) buildRow(y int, gray []float32) {
	d := f.d[y*f.width : (y+1)*f.width]
	p := f.p[y*(f.width+1) : (y+1)*(f.width+1)]
	q := f.q[y*(f.width+1) : (y+1)*(f.width+1)]

	for x, g := range gray {
		d[x] = max(Floor, 1-float64(g))
	}

	var sum, sumP float64
	for x := 0; x <= f.width; x++ {
		p[x] = sum
		sumP += sum
		q[x] = sumP
		if x < f.width {
			sum += d[x]
		}
	}
}

// Width returns the number of columns.
func (f *Field) Width() int { return f.width }

// Height returns the number of rows.
func (f *Field) Height() int { return f.height }

// At returns the density of pixel (x, y). Coordinates outside the grid are
// clamped to the nearest edge pixel.
func (f *Field) At(x, y int) float64 {
	x = min(max(x, 0), f.width-1)
	y = min(max(y, 0), f.height-1)
	return f.d[y*f.width+x]
}

// P returns the row prefix sum Σ_{i<x} d(i, y) for x in [0, W].
//
// The sum is exclusive: P(0, y) = 0, not the inclusive P(0, y) = d(0, y).
// The extra sentinel column makes Span exact for every half-open
// [x0, x1), including x0 = 0.
func (f *Field) P(x, y int) float64 { return f.p[y*(f.width+1)+x] }

// Q returns Σ_{j≤x} P(j, y) for x in [0, W].
func (f *Field) Q(x, y int) float64 { return f.q[y*(f.width+1)+x] }

// Span returns the mass Σ d and the column moment Σ i·d of the pixels
// [x0, x1) on row y, using four table lookups.
func (f *Field) Span(y, x0, x1 int) (mass, momentX float64) {
	row := y * (f.width + 1)
	p0, p1 := f.p[row+x0], f.p[row+x1]
	q0, q1 := f.q[row+x0], f.q[row+x1]
	mass = p1 - p0
	momentX = (float64(x1)*p1 - q1) - (float64(x0)*p0 - q0)
	return mass, momentX
}

// Total returns the density mass of the whole grid.
func (f *Field) Total() float64 { return f.total }

// Centroid returns the density-weighted centroid of the whole grid in
// continuous coordinates, where pixel (x, y) covers [x, x+1)×[y, y+1).
func (f *Field) Centroid() (cx, cy float64) {
	var mass, mx, my float64
	for y := range f.height {
		m, sx := f.Span(y, 0, f.width)
		mass += m
		mx += sx + 0.5*m
		my += (float64(y) + 0.5) * m
	}
	return mx / mass, my / mass
}

// Visible reports whether the pixel containing the continuous point (x, y)
// is dense enough to carry a stipple. Points outside the grid are not
// visible.
func (f *Field) Visible(x, y float64) bool {
	if x < 0 || y < 0 || x > float64(f.width) || y > float64(f.height) {
		return false
	}
	px := min(int(x), f.width-1)
	py := min(int(y), f.height-1)
	return f.d[py*f.width+px] >= VisibleThreshold
}

// VisibleFraction returns the share of pixels that are visible.
func (f *Field) VisibleFraction() float64 {
	n := 0
	for _, v := range f.d {
		if v >= VisibleThreshold {
			n++
		}
	}
	return float64(n) / float64(len(f.d))
}
