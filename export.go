package stipple

import (
	"bufio"
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"
)

// Render draws every site as a black dot of the given diameter on a white
// width×height canvas. Offscreen sites and sites outside the canvas are
// skipped.
//
// Dots go through gg, so a registered gg accelerator (see the gpu package)
// draws them as SDF circles.
func Render(width, height int, sites []Point, diameter float64) (image.Image, error) {
	dc, err := draw(width, height, sites, diameter)
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	return dc.Image(), nil
}

// WritePNG renders the sites as in Render and encodes the canvas as PNG.
func WritePNG(w io.Writer, width, height int, sites []Point, diameter float64) error {
	dc, err := draw(width, height, sites, diameter)
	if err != nil {
		return err
	}
	defer dc.Close()

	bw := bufio.NewWriter(w)
	if err := dc.EncodePNG(bw); err != nil {
		return fmt.Errorf("stipple: encode png: %w", err)
	}
	return bw.Flush()
}

func draw(width, height int, sites []Point, diameter float64) (*gg.Context, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: canvas %dx%d", ErrEmptyImage, width, height)
	}
	if !(diameter > 0) {
		return nil, fmt.Errorf("stipple: dot diameter must be positive, got %g", diameter)
	}

	dc := gg.NewContext(width, height)
	dc.ClearWithColor(gg.White)
	dc.SetRGB(0, 0, 0)

	r := diameter / 2
	drawn := 0
	for _, p := range sites {
		if p == Offscreen || !p.In(width, height) {
			continue
		}
		dc.DrawCircle(p.X, p.Y, r)
		if err := dc.Fill(); err != nil {
			_ = dc.Close()
			return nil, fmt.Errorf("stipple: draw dot at (%g, %g): %w", p.X, p.Y, err)
		}
		drawn++
	}
	if err := dc.FlushGPU(); err != nil {
		_ = dc.Close()
		return nil, fmt.Errorf("stipple: flush dots: %w", err)
	}
	Logger().Debug("stipple: rendered dots", "drawn", drawn, "sites", len(sites), "diameter", diameter)
	return dc, nil
}
