//go:build !nogpu

// Package gpu implements the hardware Voronoi backend on gogpu/wgpu's HAL.
//
// Each site is an instance of a unit cone mesh scaled past the grid
// diagonal. The vertex stage places the cone and passes the instance index
// flat to the fragment stage, which writes it into an R32Uint target; the
// Depth32Float target with a less-than compare keeps the nearest cone per
// pixel. One pass, one copy into a padded staging buffer and one fence per
// iteration.
package gpu
