package stipple

import "fmt"

// Ownership is the per-pixel result of a Voronoi pass: Owner[y*Width+x] is
// the index of the site nearest to the centre of pixel (x, y).
type Ownership struct {
	Width, Height int
	Owner         []uint32
}

// NewOwnership allocates a raster for a width×height grid.
func NewOwnership(width, height int) *Ownership {
	return &Ownership{Width: width, Height: height, Owner: make([]uint32, width*height)}
}

// At returns the owner of pixel (x, y).
func (o *Ownership) At(x, y int) uint32 {
	return o.Owner[y*o.Width+x]
}

// Row returns the owners of row y.
func (o *Ownership) Row(y int) []uint32 {
	return o.Owner[y*o.Width : (y+1)*o.Width]
}

// resize reallocates only when the grid grew.
func (o *Ownership) Resize(width, height int) {
	o.Width, o.Height = width, height
	if cap(o.Owner) < width*height {
		o.Owner = make([]uint32, width*height)
	}
	o.Owner = o.Owner[:width*height]
}

// Validate checks that the raster covers its grid and that every entry is
// a site index in [0, n).
func (o *Ownership) Validate(n int) error {
	if o.Width <= 0 || o.Height <= 0 || len(o.Owner) != o.Width*o.Height {
		return fmt.Errorf("%w: %d entries for %dx%d", ErrOwnership, len(o.Owner), o.Width, o.Height)
	}
	for i, v := range o.Owner {
		if int(v) >= n {
			return fmt.Errorf("%w: pixel (%d, %d) owned by %d, have %d sites",
				ErrOwnership, i%o.Width, i/o.Width, v, n)
		}
	}
	return nil
}
