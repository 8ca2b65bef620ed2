package stipple

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"testing"
)

// uniform returns a black width×height image.
func uniform(width, height int) Gray {
	g := NewGray(width, height)
	for i := range g.Pix {
		g.Pix[i] = 0
	}
	return g
}

// gradient darkens from white on the left to black on the right.
func gradient(width, height int) Gray {
	g := NewGray(width, height)
	for y := range height {
		for x := range width {
			g.Set(x, y, 1-float32(x)/float32(max(width-1, 1)))
		}
	}
	return g
}

func randomSites(n, width, height int, seed uint64) []Point {
	rng := rand.New(rand.NewPCG(seed, 3))
	out := make([]Point, n)
	for i := range out {
		out[i] = Point{X: rng.Float64() * float64(width), Y: rng.Float64() * float64(height)}
	}
	return out
}

// bruteForceOwnership resolves every pixel by scanning all sites.
func bruteForceOwnership(sites []Point, width, height int) *Ownership {
	o := NewOwnership(width, height)
	for y := range height {
		for x := range width {
			c := Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			best, bestD := 0, c.Dist2(sites[0])
			for i := 1; i < len(sites); i++ {
				if d := c.Dist2(sites[i]); d < bestD {
					best, bestD = i, d
				}
			}
			o.Owner[y*width+x] = uint32(best)
		}
	}
	return o
}

func rasterize(t *testing.T, b VoronoiBackend, sites []Point, width, height int) *Ownership {
	t.Helper()
	if err := b.Init(); err != nil {
		t.Fatalf("%s Init: %v", b.Name(), err)
	}
	if err := b.Configure(width, height); err != nil {
		t.Fatalf("%s Configure: %v", b.Name(), err)
	}
	if err := b.Upload(sites); err != nil {
		t.Fatalf("%s Upload: %v", b.Name(), err)
	}
	if err := b.Rasterize(); err != nil {
		t.Fatalf("%s Rasterize: %v", b.Name(), err)
	}
	var own Ownership
	if err := b.Readback(&own); err != nil {
		t.Fatalf("%s Readback: %v", b.Name(), err)
	}
	return &own
}

// mockBackend records calls and can inject failures. Rasterize assigns
// every pixel to site 0, or to badOwner when set.
type mockBackend struct {
	name          string
	initErr       error
	configureErr  error
	rasterizeErr  error
	badOwner      uint32
	width, height int
	uploads       int
	closed        bool
	logger        *slog.Logger
}

var errMockRaster = errors.New("mock: device lost")

func (m *mockBackend) Name() string               { return m.name }
func (m *mockBackend) Init() error                { return m.initErr }
func (m *mockBackend) Close()                     { m.closed = true }
func (m *mockBackend) SetLogger(l *slog.Logger)   { m.logger = l }
func (m *mockBackend) Upload(sites []Point) error { m.uploads++; return nil }
func (m *mockBackend) Rasterize() error           { return m.rasterizeErr }

func (m *mockBackend) Configure(width, height int) error {
	if m.configureErr != nil {
		return m.configureErr
	}
	m.width, m.height = width, height
	return nil
}

func (m *mockBackend) Readback(dst *Ownership) error {
	dst.Resize(m.width, m.height)
	for i := range dst.Owner {
		dst.Owner[i] = m.badOwner
	}
	return nil
}
