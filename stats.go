package stipple

import (
	"github.com/gogpu/stipple/internal/density"
	"github.com/gogpu/stipple/internal/parallel"
)

// RegionStats holds the density integrals over one Voronoi cell.
//
// Moments weight each pixel at its centre (x+0.5, y+0.5), not at its
// corner (x, y) as in the plain Σ x·d formulation. Pixel (x, y) covers
// [x, x+1)×[y, y+1) in site coordinates, so MomentX/Mass is the centroid
// in the space the sites live in, with no half-pixel shift toward the
// origin.
type RegionStats struct {
	Mass    float64 // Σ d
	MomentX float64 // Σ (x+0.5)·d
	MomentY float64 // Σ (y+0.5)·d
	Pixels  int     // number of owned pixels
}

// Centroid returns the weighted centroid of the cell. ok is false for a
// cell that owns no pixels.
func (r RegionStats) Centroid() (p Point, ok bool) {
	if r.Pixels == 0 || r.Mass <= 0 {
		return Point{}, false
	}
	return Point{X: r.MomentX / r.Mass, Y: r.MomentY / r.Mass}, true
}

func (r *RegionStats) add(o RegionStats) {
	r.Mass += o.Mass
	r.MomentX += o.MomentX
	r.MomentY += o.MomentY
	r.Pixels += o.Pixels
}

// extractor integrates the density over every cell of an ownership raster.
//
// Each row band accumulates into its own table; the tables are then summed
// in band order, so results do not depend on scheduling.
type extractor struct {
	field *density.Field
	pool  *parallel.WorkerPool
	bands []parallel.Band
	local [][]RegionStats
}

func newExtractor(f *density.Field, pool *parallel.WorkerPool) *extractor {
	bands := parallel.Split(f.Height(), pool.Workers())
	return &extractor{
		field: f,
		pool:  pool,
		bands: bands,
		local: make([][]RegionStats, len(bands)),
	}
}

// extract fills out[0:n] from own. own must have been validated against n.
func (e *extractor) extract(own *Ownership, out []RegionStats) {
	n := len(out)
	for i := range e.local {
		if cap(e.local[i]) < n {
			e.local[i] = make([]RegionStats, n)
		}
		e.local[i] = e.local[i][:n]
	}

	e.pool.ForBands(e.bands, func(i int, b parallel.Band) {
		acc := e.local[i]
		clear(acc)
		for y := b.Lo; y < b.Hi; y++ {
			e.scanRow(own.Row(y), y, acc)
		}
	})

	e.pool.ForRange(n, func(lo, hi int) {
		for k := lo; k < hi; k++ {
			var s RegionStats
			for _, acc := range e.local {
				s.add(acc[k])
			}
			out[k] = s
		}
	})
}

// scanRow walks runs of equal owners; each run costs one Span lookup.
func (e *extractor) scanRow(row []uint32, y int, acc []RegionStats) {
	cy := float64(y) + 0.5
	x0 := 0
	for x := 1; x <= len(row); x++ {
		if x < len(row) && row[x] == row[x0] {
			continue
		}
		m, sx := e.field.Span(y, x0, x)
		s := &acc[row[x0]]
		s.Mass += m
		s.MomentX += sx + 0.5*m
		s.MomentY += cy * m
		s.Pixels += x - x0
		x0 = x
	}
}
