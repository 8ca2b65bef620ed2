package stipple

import "math"

// Point is a site position in continuous pixel coordinates.
type Point struct {
	X, Y float64
}

// Offscreen marks a site that is kept in the set but not drawn.
var Offscreen = Point{X: -1, Y: -1}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// In reports whether p lies in [0, w]×[0, h].
func (p Point) In(w, h int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(w) && p.Y <= float64(h)
}

// Clamp returns p limited component-wise to [0, w]×[0, h]. NaN components
// become 0.
func (p Point) Clamp(w, h int) Point {
	return Point{X: clamp(p.X, float64(w)), Y: clamp(p.Y, float64(h))}
}

func clamp(v, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, hi))
}

// Dist2 returns the squared distance between p and q.
func (p Point) Dist2(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}
