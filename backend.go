package stipple

import (
	"errors"
	"sync"
)

// ErrFallbackToCPU indicates a backend cannot serve the requested grid.
// The engine then uses the software backend instead.
var ErrFallbackToCPU = errors.New("stipple: falling back to CPU voronoi")

// VoronoiBackend computes the discrete Voronoi partition of a pixel grid.
//
// Conceptually every site is drawn as a cone whose apex sits at the site and
// whose depth grows linearly with distance; a closest-wins depth test keeps,
// for every pixel centre, the index of the nearest site. When two sites are
// at exactly the same distance the lower index wins.
//
// Every method blocks until its work is complete and its results are
// visible to the next call, so Upload, Rasterize and Readback act as the
// fences of one iteration. A backend is driven by one goroutine at a time.
//
// Backends are provided by this package (software, jump flooding) and by
// GPU backend packages, which register themselves via blank import:
//
//	import _ "github.com/gogpu/stipple/gpu" // enables the GPU backend
type VoronoiBackend interface {
	// Name returns the backend name (e.g., "software", "wgpu").
	Name() string

	// Init acquires long-lived resources. Called once before first use.
	Init() error

	// Close releases all resources.
	Close()

	// Configure sizes the render targets for a width×height grid.
	// Calling it again with the same size is cheap.
	// Returns ErrFallbackToCPU if the grid cannot be served.
	Configure(width, height int) error

	// Upload replaces the site positions. Positions must lie within
	// [0, width]×[0, height].
	Upload(sites []Point) error

	// Rasterize computes ownership for every pixel of the configured grid.
	// The previous result is fully replaced.
	Rasterize() error

	// Readback copies the last ownership raster into dst, resizing it to
	// the configured grid.
	Readback(dst *Ownership) error
}

// DeviceProviderAware is an optional interface for backends that can share
// GPU resources with an external provider (e.g., a host window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	backendMu sync.RWMutex
	backend   VoronoiBackend

	// sharedMu serializes engines that drive the registered backend.
	sharedMu sync.Mutex
)

// RegisterBackend registers the process-wide accelerated Voronoi backend.
//
// Only one backend can be registered. Subsequent calls replace the previous
// one, which is closed. Init is called during registration; if it fails the
// backend is not registered and the error is returned.
//
// Typical usage via blank import in GPU backend packages:
//
//	func init() {
//	    stipple.RegisterBackend(NewConeBackend())
//	}
func RegisterBackend(b VoronoiBackend) error {
	if b == nil {
		return errors.New("stipple: backend must not be nil")
	}
	if err := b.Init(); err != nil {
		return err
	}
	propagateLogger(b, Logger())

	sharedMu.Lock()
	backendMu.Lock()
	old := backend
	backend = b
	backendMu.Unlock()
	sharedMu.Unlock()

	if old != nil {
		old.Close()
	}
	Logger().Info("stipple: backend registered", "name", b.Name())
	return nil
}

// Backend returns the registered backend, or nil if none.
func Backend() VoronoiBackend {
	backendMu.RLock()
	b := backend
	backendMu.RUnlock()
	return b
}

// CloseBackend releases the registered backend and unregisters it.
// Engines created afterwards use the software backend.
func CloseBackend() {
	sharedMu.Lock()
	backendMu.Lock()
	b := backend
	backend = nil
	backendMu.Unlock()
	sharedMu.Unlock()

	if b != nil {
		b.Close()
	}
}

// SetBackendDeviceProvider passes a device provider to the registered
// backend, enabling GPU device sharing. If no backend is registered or it
// doesn't support device sharing, this is a no-op.
func SetBackendDeviceProvider(provider any) error {
	b := Backend()
	if b == nil {
		return nil
	}
	if dpa, ok := b.(DeviceProviderAware); ok {
		sharedMu.Lock()
		defer sharedMu.Unlock()
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
