package stipple

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/stipple/internal/parallel"
)

// JumpFloodBackend approximates the Voronoi partition with the jump
// flooding algorithm: seeds are written at the pixels containing the sites,
// then log2(max(W, H)) passes propagate the best known site with halving
// step sizes, followed by one extra pass at step 1.
//
// Cost is O(W·H·log max(W, H)) independent of the number of sites. A small
// fraction of pixels near cell boundaries may end up with a neighbouring
// site, and a site sharing its pixel with a lower index owns nothing.
type JumpFloodBackend struct {
	mu      sync.Mutex
	workers int
	pool    *parallel.WorkerPool

	width, height int
	sites         []Point
	front, back   []int32
}

// NewJumpFloodBackend creates a jump flooding backend using the given
// number of workers. Zero or negative means GOMAXPROCS.
func NewJumpFloodBackend(workers int) *JumpFloodBackend {
	return &JumpFloodBackend{workers: workers}
}

// Name returns "jumpflood".
func (j *JumpFloodBackend) Name() string { return "jumpflood" }

// Init starts the worker pool. It is idempotent.
func (j *JumpFloodBackend) Init() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pool == nil {
		j.pool = parallel.NewWorkerPool(j.workers)
	}
	return nil
}

// Close stops the worker pool.
func (j *JumpFloodBackend) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pool != nil {
		j.pool.Close()
		j.pool = nil
	}
}

// Configure sizes the ping-pong buffers.
func (j *JumpFloodBackend) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.width != width || j.height != height {
		j.width, j.height = width, height
		j.front = make([]int32, width*height)
		j.back = make([]int32, width*height)
	}
	return nil
}

// Upload stores a copy of the sites.
func (j *JumpFloodBackend) Upload(sites []Point) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := checkUpload(sites, j.width, j.height); err != nil {
		return err
	}
	if uint64(len(sites)) > math.MaxInt32 {
		return fmt.Errorf("stipple: %d sites exceed the jump flood index range", len(sites))
	}
	j.sites = append(j.sites[:0], sites...)
	return nil
}

// Rasterize floods the grid.
func (j *JumpFloodBackend) Rasterize() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.sites) == 0 {
		return ErrNoSites
	}

	for i := range j.front {
		j.front[i] = -1
	}
	// Ascending order keeps the lowest index on a shared pixel.
	for i, p := range j.sites {
		px := min(int(p.X), j.width-1)
		py := min(int(p.Y), j.height-1)
		if k := py*j.width + px; j.front[k] < 0 {
			j.front[k] = int32(i)
		}
	}

	step := 1
	for step < max(j.width, j.height) {
		step <<= 1
	}
	for step >>= 1; step >= 1; step >>= 1 {
		j.pass(step)
	}
	j.pass(1)

	// Unreached pixels cannot occur with at least one seed; resolve any
	// leftovers exactly rather than trusting that.
	for k, v := range j.front {
		if v < 0 {
			j.front[k] = j.bruteForce(float64(k%j.width)+0.5, float64(k/j.width)+0.5)
		}
	}
	return nil
}

// pass propagates from front into back at the given step and swaps them.
func (j *JumpFloodBackend) pass(step int) {
	j.pool.ForRange(j.height, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			cy := float64(y) + 0.5
			for x := range j.width {
				cx := float64(x) + 0.5
				best := int32(-1)
				bestD := math.Inf(1)
				for dy := -step; dy <= step; dy += step {
					ny := y + dy
					if ny < 0 || ny >= j.height {
						continue
					}
					for dx := -step; dx <= step; dx += step {
						nx := x + dx
						if nx < 0 || nx >= j.width {
							continue
						}
						s := j.front[ny*j.width+nx]
						if s < 0 {
							continue
						}
						d := j.sites[s].Dist2(Point{X: cx, Y: cy})
						if d < bestD || (d == bestD && s < best) {
							best, bestD = s, d
						}
					}
				}
				j.back[y*j.width+x] = best
			}
		}
	})
	j.front, j.back = j.back, j.front
}

func (j *JumpFloodBackend) bruteForce(x, y float64) int32 {
	best := int32(0)
	bestD := math.Inf(1)
	for i, p := range j.sites {
		if d := p.Dist2(Point{X: x, Y: y}); d < bestD {
			best, bestD = int32(i), d
		}
	}
	return best
}

// Readback copies the flooded raster into dst.
func (j *JumpFloodBackend) Readback(dst *Ownership) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	dst.Resize(j.width, j.height)
	for k, v := range j.front {
		dst.Owner[k] = uint32(v)
	}
	return nil
}
