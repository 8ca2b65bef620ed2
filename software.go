package stipple

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/stipple/internal/parallel"
)

// SoftwareBackend is the reference CPU backend. It resolves the cone depth
// test exactly: every pixel centre is owned by the site at the smallest
// Euclidean distance, the lower index winning ties, which is what a GPU
// draw in index order with a strict less-than depth compare produces.
//
// Sites are bucketed in a uniform grid so that a pixel only inspects the
// cells around it.
type SoftwareBackend struct {
	mu      sync.Mutex
	workers int
	pool    *parallel.WorkerPool

	width, height int
	sites         []Point
	owner         []uint32

	buckets siteGrid
}

// NewSoftwareBackend creates a CPU backend using the given number of
// workers. Zero or negative means GOMAXPROCS.
func NewSoftwareBackend(workers int) *SoftwareBackend {
	return &SoftwareBackend{workers: workers}
}

// Name returns "software".
func (s *SoftwareBackend) Name() string { return "software" }

// Init starts the worker pool. It is idempotent.
func (s *SoftwareBackend) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		s.pool = parallel.NewWorkerPool(s.workers)
	}
	return nil
}

// Close stops the worker pool.
func (s *SoftwareBackend) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// Configure sizes the ownership raster.
func (s *SoftwareBackend) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width != width || s.height != height {
		s.width, s.height = width, height
		s.owner = make([]uint32, width*height)
	}
	return nil
}

// Upload stores a copy of the sites and rebuilds the bucket grid.
func (s *SoftwareBackend) Upload(sites []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkUpload(sites, s.width, s.height); err != nil {
		return err
	}
	s.sites = append(s.sites[:0], sites...)
	s.buckets.build(s.sites, s.width, s.height)
	return nil
}

// Rasterize assigns every pixel to its nearest site.
func (s *SoftwareBackend) Rasterize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sites) == 0 {
		return ErrNoSites
	}
	s.pool.ForRange(s.height, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			row := s.owner[y*s.width : (y+1)*s.width]
			cy := float64(y) + 0.5
			for x := range row {
				row[x] = s.buckets.nearest(s.sites, float64(x)+0.5, cy)
			}
		}
	})
	return nil
}

// Readback copies the ownership raster into dst.
func (s *SoftwareBackend) Readback(dst *Ownership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst.Resize(s.width, s.height)
	copy(dst.Owner, s.owner)
	return nil
}

// checkUpload rejects empty site sets and positions outside the grid.
func checkUpload(sites []Point, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("stipple: upload before configure")
	}
	if len(sites) == 0 {
		return ErrNoSites
	}
	if uint64(len(sites)) > math.MaxUint32 {
		return fmt.Errorf("stipple: %d sites exceed the index range", len(sites))
	}
	for i, p := range sites {
		if !p.In(width, height) {
			return fmt.Errorf("stipple: site %d at (%g, %g) outside %dx%d", i, p.X, p.Y, width, height)
		}
	}
	return nil
}

// siteGrid buckets site indices into square cells. Indices inside a cell
// are ascending.
type siteGrid struct {
	cell   float64
	cols   int
	rows   int
	start  []int32 // cols*rows+1 offsets into index
	index  []int32
	counts []int32
}

func (g *siteGrid) build(sites []Point, width, height int) {
	g.cell = max(1, math.Sqrt(float64(width)*float64(height)/float64(len(sites))))
	g.cols = int(float64(width)/g.cell) + 1
	g.rows = int(float64(height)/g.cell) + 1

	n := g.cols * g.rows
	if cap(g.counts) < n {
		g.counts = make([]int32, n)
		g.start = make([]int32, n+1)
	}
	g.counts = g.counts[:n]
	g.start = g.start[:n+1]
	clear(g.counts)

	for _, p := range sites {
		g.counts[g.cellOf(p.X, p.Y)]++
	}
	g.start[0] = 0
	for i, c := range g.counts {
		g.start[i+1] = g.start[i] + c
	}
	if cap(g.index) < len(sites) {
		g.index = make([]int32, len(sites))
	}
	g.index = g.index[:len(sites)]

	clear(g.counts)
	for i, p := range sites {
		c := g.cellOf(p.X, p.Y)
		g.index[g.start[c]+g.counts[c]] = int32(i)
		g.counts[c]++
	}
}

func (g *siteGrid) cellOf(x, y float64) int {
	cx := min(int(x/g.cell), g.cols-1)
	cy := min(int(y/g.cell), g.rows-1)
	return cy*g.cols + cx
}

// nearest searches rings of cells around (x, y). A site in ring r+1 is at
// least r cells away, so the search stops once the best distance is
// strictly below that bound; equal distances can then no longer appear.
func (g *siteGrid) nearest(sites []Point, x, y float64) uint32 {
	cx := min(int(x/g.cell), g.cols-1)
	cy := min(int(y/g.cell), g.rows-1)

	best := int32(-1)
	bestD := math.Inf(1)
	maxRing := max(g.cols, g.rows)

	for r := 0; r <= maxRing; r++ {
		if best >= 0 {
			bound := float64(r-1) * g.cell
			if r > 0 && bestD < bound*bound {
				break
			}
		}
		for j := cy - r; j <= cy+r; j++ {
			if j < 0 || j >= g.rows {
				continue
			}
			step := 1
			if j != cy-r && j != cy+r {
				step = 2 * r
			}
			for i := cx - r; i <= cx+r; i += step {
				if i < 0 || i >= g.cols {
					continue
				}
				c := j*g.cols + i
				for _, k := range g.index[g.start[c]:g.start[c+1]] {
					p := sites[k]
					dx, dy := p.X-x, p.Y-y
					d := dx*dx + dy*dy
					if d < bestD || (d == bestD && k < best) {
						best, bestD = k, d
					}
				}
			}
		}
	}
	return uint32(best)
}
