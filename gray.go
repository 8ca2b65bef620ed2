package stipple

import (
	"fmt"
	"image"
	"image/color"
)

// Gray is a single-channel image with intensities in [0, 1], 0 being black.
// Pix holds Width*Height samples in row-major order.
type Gray struct {
	Width, Height int
	Pix           []float32
}

// NewGray allocates a white image.
func NewGray(width, height int) Gray {
	g := Gray{Width: width, Height: height, Pix: make([]float32, max(width, 0)*max(height, 0))}
	for i := range g.Pix {
		g.Pix[i] = 1
	}
	return g
}

// At returns the intensity of pixel (x, y).
func (g Gray) At(x, y int) float32 {
	return g.Pix[y*g.Width+x]
}

// Set sets the intensity of pixel (x, y).
func (g Gray) Set(x, y int, v float32) {
	g.Pix[y*g.Width+x] = v
}

// Empty reports whether the image has no pixels.
func (g Gray) Empty() bool {
	return g.Width <= 0 || g.Height <= 0
}

func (g Gray) validate() error {
	if g.Empty() {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, g.Width, g.Height)
	}
	if len(g.Pix) < g.Width*g.Height {
		return fmt.Errorf("stipple: gray image has %d samples, want %d", len(g.Pix), g.Width*g.Height)
	}
	return nil
}

// GrayFromImage converts img to intensities using the standard luminance
// weights. The result is anchored at the origin regardless of img.Bounds().Min.
func GrayFromImage(img image.Image) Gray {
	b := img.Bounds()
	g := Gray{Width: b.Dx(), Height: b.Dy(), Pix: make([]float32, b.Dx()*b.Dy())}

	if src, ok := img.(*image.Gray); ok {
		for y := range g.Height {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+g.Width]
			for x, v := range row {
				g.Pix[y*g.Width+x] = float32(v) / 0xff
			}
		}
		return g
	}

	for y := range g.Height {
		for x := range g.Width {
			c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			g.Pix[y*g.Width+x] = float32(c.Y) / 0xffff
		}
	}
	return g
}
