package stipple

import "time"

// Option configures an Engine during creation.
//
// Example:
//
//	// Defaults: 1280 sites, threshold 1e-4
//	eng, _ := stipple.NewEngine(gray)
//
//	// Fewer sites, reproducible seeding, at most 200 iterations
//	eng, _ := stipple.NewEngine(gray,
//	    stipple.WithCount(500),
//	    stipple.WithSeed(42),
//	    stipple.WithMaxIterations(200))
type Option func(*options)

type options struct {
	count         int
	threshold     float64
	seed          uint64
	backend       VoronoiBackend
	workers       int
	maxIterations int
	initial       []Point
	progress      func(Progress)
}

const (
	// DefaultCount is the number of sites used when WithCount is not given.
	DefaultCount = 1280

	// DefaultThreshold is the default convergence threshold on delta.
	DefaultThreshold = 1e-4
)

func defaultOptions() options {
	return options{
		count:     DefaultCount,
		threshold: DefaultThreshold,
		seed:      1,
	}
}

// Progress describes one completed iteration.
type Progress struct {
	Iteration int
	Sigma     float64 // population standard deviation of pixel counts
	Delta     float64 // |Sigma - previous Sigma|
	Elapsed   time.Duration
}

// WithCount sets the number of sites. It is ignored when WithInitialSites
// is given.
func WithCount(n int) Option {
	return func(o *options) {
		o.count = n
	}
}

// WithThreshold sets the convergence threshold: the run converges once the
// change of sigma between two iterations drops below t.
func WithThreshold(t float64) Option {
	return func(o *options) {
		o.threshold = t
	}
}

// WithSeed sets the seed of the random site placement.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithBackend sets the Voronoi backend. The engine initializes, configures
// and eventually closes it.
//
// Example:
//
//	eng, _ := stipple.NewEngine(gray,
//	    stipple.WithBackend(stipple.NewJumpFloodBackend(0)))
func WithBackend(b VoronoiBackend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithWorkers sets the number of goroutines used for row and site work.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMaxIterations caps the number of iterations Run performs. Zero means
// no cap.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithInitialSites starts from the given positions instead of random
// seeding. The count becomes len(pts). Positions are clamped to the image.
func WithInitialSites(pts []Point) Option {
	return func(o *options) {
		o.initial = make([]Point, len(pts))
		copy(o.initial, pts)
	}
}

// WithProgress installs a callback invoked after every iteration, on the
// goroutine that called Step or Run.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) {
		o.progress = fn
	}
}
