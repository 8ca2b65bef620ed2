//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/stipple"
)

const (
	// coneSegments is the number of fan triangles per cone.
	coneSegments = 64

	// coneVertexStride is three float32: unit offset x, y and depth.
	coneVertexStride = 12

	// siteStride is two float32 per instance.
	siteStride = 8

	// paramsSize is the uniform block: viewport (2), radius, padding.
	paramsSize = 16

	// copyPitchAlignment is the row alignment of texture-to-buffer copies.
	copyPitchAlignment = 256
)

// coneVertices returns a triangle list for a unit cone: every triangle joins
// the apex (depth 0) to two consecutive rim points (depth 1).
func coneVertices(segments int) []float32 {
	out := make([]float32, 0, segments*9)
	for i := range segments {
		a0 := 2 * math.Pi * float64(i) / float64(segments)
		a1 := 2 * math.Pi * float64(i+1) / float64(segments)
		out = append(out,
			0, 0, 0,
			float32(math.Cos(a0)), float32(math.Sin(a0)), 1,
			float32(math.Cos(a1)), float32(math.Sin(a1)), 1,
		)
	}
	return out
}

// coneRadius returns a radius at which the inscribed polygon of a cone
// placed anywhere in a w×h grid still covers every pixel centre with
// depth below 1.
func coneRadius(w, h, segments int) float32 {
	diag := math.Hypot(float64(w), float64(h)) + 2
	return float32(diag / math.Cos(math.Pi/float64(segments)))
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// packSites writes site positions as float32 pairs into buf, growing it as
// needed.
func packSites(buf []byte, sites []stipple.Point) []byte {
	size := len(sites) * siteStride
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	for i, p := range sites {
		binary.LittleEndian.PutUint32(buf[i*siteStride:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[i*siteStride+4:], math.Float32bits(float32(p.Y)))
	}
	return buf
}

func makeParams(w, h uint32, radius float32) []byte {
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(float32(w)))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(h)))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(radius))
	return buf
}

// alignedRowBytes returns the padded row pitch of an R32Uint readback.
func alignedRowBytes(w uint32) uint32 {
	return (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// unpadOwners decodes a padded R32Uint readback into dst (w*h entries).
func unpadOwners(src []byte, dst []uint32, w, h, pitch uint32) {
	for y := range h {
		row := src[y*pitch:]
		out := dst[y*w : (y+1)*w]
		for x := range out {
			out[x] = binary.LittleEndian.Uint32(row[4*x:])
		}
	}
}
