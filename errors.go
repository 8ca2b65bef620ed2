package stipple

import "errors"

var (
	// ErrEmptyImage is returned for an image with no pixels.
	ErrEmptyImage = errors.New("stipple: empty image")

	// ErrNoSites is returned when the site count is not positive.
	ErrNoSites = errors.New("stipple: site count must be positive")

	// ErrNoVisibleRegion is returned when no pixel is dark enough to carry
	// a seed.
	ErrNoVisibleRegion = errors.New("stipple: image has no visible region")

	// ErrNotSeeded is returned by Step and Run before Seed.
	ErrNotSeeded = errors.New("stipple: engine not seeded")

	// ErrBackend wraps failures of the Voronoi backend during a step.
	// They are fatal for the run.
	ErrBackend = errors.New("stipple: voronoi backend failure")

	// ErrOwnership is returned when a read-back raster does not match the
	// grid or holds an index outside [0, N).
	ErrOwnership = errors.New("stipple: invalid ownership raster")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("stipple: engine closed")
)
