// Package stipple computes weighted Voronoi stipplings of grayscale images.
//
// # Overview
//
// A fixed number of sites is scattered over the dark parts of an image and
// relaxed with Lloyd's algorithm: every iteration partitions the pixel grid
// by nearest site, integrates the image density over each cell and moves
// every site to its cell's weighted centroid. Once the spread of cell areas
// stops changing, the sites are drawn as dots.
//
// # Quick Start
//
//	eng, err := stipple.NewEngine(stipple.GrayFromImage(img),
//	    stipple.WithCount(2000))
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if err := eng.Seed(); err != nil {
//	    return err
//	}
//	if _, err := eng.Run(ctx); err != nil {
//	    return err
//	}
//	out, err := stipple.Render(w, h, eng.ExportSites(), 11)
//
// # Voronoi Backends
//
// The nearest-site partition is computed by a [VoronoiBackend]. Each site is
// drawn as a cone whose depth grows with distance from the apex; a
// closest-wins depth test leaves the owning site index in every pixel.
// The GPU backend does this with hardware rasterization:
//
//	import _ "github.com/gogpu/stipple/gpu" // enables the GPU backend
//
// Without it, [NewSoftwareBackend] performs the same depth test on the CPU
// and [NewJumpFloodBackend] trades exactness for speed.
//
// # Region Statistics
//
// Cell areas and moments come from row-wise prefix tables of the density,
// so each run of equal owners along a row costs four lookups no matter how
// long it is.
//
// # Coordinate System
//
// Origin at the top-left corner, X to the right, Y down. Pixel (x, y)
// covers [x, x+1)×[y, y+1) and is sampled at its centre.
package stipple
