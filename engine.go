package stipple

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gogpu/stipple/internal/density"
	"github.com/gogpu/stipple/internal/parallel"
)

// State is the lifecycle stage of an Engine.
type State int

const (
	// StateSeeding is the initial state: no sites have been placed yet.
	StateSeeding State = iota

	// StateIterating means sites are placed and relaxation is in progress.
	StateIterating

	// StateConverged means delta dropped below the threshold.
	StateConverged

	// StateCancelled means a context was cancelled at an iteration
	// boundary. The sites of the last completed iteration are kept and
	// a later Step or Run resumes from them.
	StateCancelled

	// StateExhausted means the iteration cap was reached first.
	StateExhausted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSeeding:
		return "seeding"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateCancelled:
		return "cancelled"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine relaxes a set of stipple sites over a density image with Lloyd's
// algorithm.
//
// One iteration rasterizes the Voronoi partition of the current sites,
// integrates the density over each cell, and moves every site to its
// cell's weighted centroid. The spread (population standard deviation) of
// the per-cell pixel counts is tracked; the run converges when its change
// between two iterations drops below the threshold.
//
// Thread safety: all methods are safe for concurrent use, but iterations
// are serialized.
type Engine struct {
	mu   sync.Mutex
	opts options
	log  *slog.Logger

	field *density.Field
	pool  *parallel.WorkerPool
	ext   *extractor
	own   Ownership

	backend     VoronoiBackend
	ownsBackend bool
	shared      bool

	sites  []Point
	stats  []RegionStats
	counts []float64

	state     State
	iteration int
	sigma     float64
	delta     float64
	closed    bool
}

// NewEngine builds the density field of img and selects a backend.
//
// Backend selection: the WithBackend option if given, otherwise the
// registered backend, otherwise a software backend. A registered backend
// that cannot serve the grid is skipped with a warning.
func NewEngine(img Gray, opts ...Option) (*Engine, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.initial != nil {
		o.count = len(o.initial)
	}

	pool := parallel.NewWorkerPool(o.workers)
	field, err := density.Build(img.Width, img.Height, img.Pix, pool)
	if err != nil {
		pool.Close()
		if errors.Is(err, density.ErrEmpty) {
			return nil, fmt.Errorf("%w: %w", ErrEmptyImage, err)
		}
		return nil, err
	}

	e := &Engine{
		opts:  o,
		log:   Logger(),
		field: field,
		pool:  pool,
		ext:   newExtractor(field, pool),
	}
	if err := e.resolveBackend(); err != nil {
		pool.Close()
		return nil, err
	}
	e.log.Info("stipple: engine created",
		"width", img.Width, "height", img.Height,
		"backend", e.backend.Name(), "workers", pool.Workers())
	return e, nil
}

func (e *Engine) resolveBackend() error {
	w, h := e.field.Width(), e.field.Height()

	if b := e.opts.backend; b != nil {
		if err := b.Init(); err != nil {
			return fmt.Errorf("%w: init %s: %w", ErrBackend, b.Name(), err)
		}
		if err := b.Configure(w, h); err != nil {
			b.Close()
			return fmt.Errorf("%w: configure %s: %w", ErrBackend, b.Name(), err)
		}
		e.backend, e.ownsBackend = b, true
		return nil
	}

	if b := Backend(); b != nil {
		sharedMu.Lock()
		err := b.Configure(w, h)
		sharedMu.Unlock()
		if err == nil {
			e.backend, e.shared = b, true
			return nil
		}
		e.log.Warn("stipple: registered backend unavailable, using software",
			"backend", b.Name(), "width", w, "height", h, "err", err)
	}

	sw := NewSoftwareBackend(e.opts.workers)
	if err := sw.Init(); err != nil {
		return err
	}
	if err := sw.Configure(w, h); err != nil {
		sw.Close()
		return err
	}
	e.backend, e.ownsBackend = sw, true
	return nil
}

// Seed places the sites. Random positions are drawn uniformly over the
// image and kept only where the density is visible; WithInitialSites
// replaces the random draw. Seeding again restarts the run.
func (e *Engine) Seed() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	n := e.opts.count
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrNoSites, n)
	}
	if e.field.VisibleFraction() == 0 {
		return ErrNoVisibleRegion
	}

	w, h := e.field.Width(), e.field.Height()
	sites := make([]Point, 0, n)
	if e.opts.initial != nil {
		for _, p := range e.opts.initial {
			sites = append(sites, p.Clamp(w, h))
		}
	} else {
		rng := rand.New(rand.NewPCG(e.opts.seed, e.opts.seed^0x9e3779b97f4a7c15))
		for len(sites) < n {
			x := rng.Float64() * float64(w)
			y := rng.Float64() * float64(h)
			if e.field.Visible(x, y) {
				sites = append(sites, Point{X: x, Y: y})
			}
		}
	}

	e.sites = sites
	e.stats = make([]RegionStats, n)
	e.counts = make([]float64, n)
	e.state = StateIterating
	e.iteration = 0
	e.sigma = 0
	e.delta = 0

	e.log.Info("stipple: seeded", "sites", n, "visible", e.field.VisibleFraction())
	return nil
}

// Step performs one Lloyd iteration and returns delta. On a converged or
// exhausted engine it does nothing and returns the last delta.
//
// The context is checked once, before any work; a cancelled context moves
// the engine to StateCancelled and leaves the sites untouched. A backend
// failure wraps ErrBackend and also leaves the sites untouched.
func (e *Engine) Step(ctx context.Context) (float64, error) {
	e.mu.Lock()
	p, report, err := e.step(ctx)
	e.mu.Unlock()

	if report && e.opts.progress != nil {
		e.opts.progress(p)
	}
	return p.Delta, err
}

func (e *Engine) step(ctx context.Context) (Progress, bool, error) {
	switch {
	case e.closed:
		return Progress{}, false, ErrClosed
	case e.state == StateSeeding:
		return Progress{}, false, ErrNotSeeded
	case e.state == StateConverged || e.state == StateExhausted:
		return Progress{Iteration: e.iteration, Sigma: e.sigma, Delta: e.delta}, false, nil
	}
	if err := ctx.Err(); err != nil {
		e.state = StateCancelled
		return Progress{Iteration: e.iteration, Sigma: e.sigma, Delta: e.delta}, false, err
	}
	e.state = StateIterating

	start := time.Now()
	if err := e.partition(); err != nil {
		return Progress{}, false, fmt.Errorf("%w: %s: %w", ErrBackend, e.backend.Name(), err)
	}
	e.ext.extract(&e.own, e.stats)
	e.relax()

	for i, s := range e.stats {
		e.counts[i] = float64(s.Pixels)
	}
	_, variance := stat.PopMeanVariance(e.counts, nil)
	sigma := math.Sqrt(variance)
	e.delta = math.Abs(sigma - e.sigma)
	e.sigma = sigma
	e.iteration++

	switch {
	case e.delta < e.opts.threshold:
		e.state = StateConverged
		e.log.Info("stipple: converged", "iterations", e.iteration, "sigma", sigma)
	case e.opts.maxIterations > 0 && e.iteration >= e.opts.maxIterations:
		e.state = StateExhausted
		e.log.Info("stipple: iteration cap reached", "iterations", e.iteration, "delta", e.delta)
	}

	p := Progress{
		Iteration: e.iteration,
		Sigma:     sigma,
		Delta:     e.delta,
		Elapsed:   time.Since(start),
	}
	if e.log.Enabled(ctx, slog.LevelDebug) {
		mass := make([]float64, len(e.stats))
		for i, s := range e.stats {
			mass[i] = s.Mass
		}
		e.log.Debug("stipple: iteration",
			"n", p.Iteration, "sigma", p.Sigma, "delta", p.Delta,
			"mass", floats.Sum(mass), "elapsed", p.Elapsed)
	}
	return p, true, nil
}

// partition runs the backend over the current sites into e.own.
func (e *Engine) partition() error {
	if e.shared {
		sharedMu.Lock()
		defer sharedMu.Unlock()
		if err := e.backend.Configure(e.field.Width(), e.field.Height()); err != nil {
			return err
		}
	}
	if err := e.backend.Upload(e.sites); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := e.backend.Rasterize(); err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	if err := e.backend.Readback(&e.own); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	if e.own.Width != e.field.Width() || e.own.Height != e.field.Height() {
		return fmt.Errorf("%w: raster %dx%d for a %dx%d grid",
			ErrOwnership, e.own.Width, e.own.Height, e.field.Width(), e.field.Height())
	}
	return e.own.Validate(len(e.sites))
}

// relax moves every site to its cell's centroid. The divisor is floored so
// that nearly empty cells stay finite; a cell without pixels keeps its site
// where it is.
func (e *Engine) relax() {
	w, h := e.field.Width(), e.field.Height()
	e.pool.ForRange(len(e.sites), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			s := e.stats[i]
			if s.Pixels == 0 {
				continue
			}
			z := max(density.Floor, s.Mass)
			e.sites[i] = Point{X: s.MomentX / z, Y: s.MomentY / z}.Clamp(w, h)
		}
	})
}

// Run iterates until the engine converges, reaches the iteration cap, the
// context is cancelled or the backend fails. It returns the final state.
func (e *Engine) Run(ctx context.Context) (State, error) {
	for {
		if _, err := e.Step(ctx); err != nil {
			return e.State(), err
		}
		switch st := e.State(); st {
		case StateConverged, StateExhausted:
			return st, nil
		}
	}
}

// Converged reports whether delta dropped below the threshold.
func (e *Engine) Converged() bool {
	return e.State() == StateConverged
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Sites returns a copy of the current site positions.
func (e *Engine) Sites() []Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Point(nil), e.sites...)
}

// ExportSites returns a copy of the sites in which every site lying on
// a pixel below the visibility threshold is replaced by Offscreen. The
// engine's own sites are not modified and indices are preserved.
func (e *Engine) ExportSites() []Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Point, len(e.sites))
	for i, p := range e.sites {
		if e.field.Visible(p.X, p.Y) {
			out[i] = p
		} else {
			out[i] = Offscreen
		}
	}
	return out
}

// Stats returns a copy of the region statistics of the last iteration.
func (e *Engine) Stats() []RegionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]RegionStats(nil), e.stats...)
}

// Iteration returns the number of completed iterations.
func (e *Engine) Iteration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.iteration
}

// Delta returns the change of sigma in the last iteration.
func (e *Engine) Delta() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delta
}

// Sigma returns the population standard deviation of the per-cell pixel
// counts of the last iteration.
func (e *Engine) Sigma() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sigma
}

// Bounds returns the working resolution.
func (e *Engine) Bounds() (width, height int) {
	return e.field.Width(), e.field.Height()
}

// BackendName returns the name of the backend in use.
func (e *Engine) BackendName() string {
	return e.backend.Name()
}

// Close releases the worker pool and any backend the engine owns.
// A registered backend stays registered. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.ownsBackend {
		e.backend.Close()
	}
	e.pool.Close()
	return nil
}
