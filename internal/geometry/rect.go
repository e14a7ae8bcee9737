// Package geometry holds the rectangle arithmetic shared by the normalizer,
// the matcher, the reconciler and the tracker.
package geometry

import "math"

// Rect is an axis-aligned rectangle. The coordinate space it lives in is
// always carried by the caller, never by the value itself.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area is zero for degenerate or inverted rectangles.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}

	return r.Width * r.Height
}

func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Finite reports whether every component is a real number and both sides
// are strictly positive.
func (r Rect) Finite() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return r.Width > 0 && r.Height > 0
}

func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Scale divides every component by (sx, sy). Non-positive factors leave the
// rectangle untouched.
func (r Rect) Scale(sx, sy float64) Rect {
	if sx <= 0 || sy <= 0 {
		return r
	}

	return Rect{X: r.X / sx, Y: r.Y / sy, Width: r.Width / sx, Height: r.Height / sy}
}

func (r Rect) Intersect(o Rect) Rect {
	x1 := math.Max(r.X, o.X)
	y1 := math.Max(r.Y, o.Y)
	x2 := math.Min(r.Right(), o.Right())
	y2 := math.Min(r.Bottom(), o.Bottom())

	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}

	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// IoU is the intersection-over-union of r and o in [0, 1].
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0
	}

	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	return inter / union
}

// Contains reports whether the point lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.Right() && y >= r.Y && y <= r.Bottom()
}

// ClampTo keeps every edge of r within [-w, 2w] x [-h, 2h], i.e. at most one
// extent beyond the (0, 0, w, h) frame on each side.
func (r Rect) ClampTo(w, h float64) Rect {
	if w <= 0 || h <= 0 {
		return r
	}

	x1 := clamp(r.X, -w, 2*w)
	y1 := clamp(r.Y, -h, 2*h)
	x2 := clamp(r.Right(), -w, 2*w)
	y2 := clamp(r.Bottom(), -h, 2*h)

	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Round snaps components to 1/100 px so repeated float math stays stable.
func (r Rect) Round() Rect {
	return Rect{X: round2(r.X), Y: round2(r.Y), Width: round2(r.Width), Height: round2(r.Height)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clamp bounds v to [lo, hi]. When hi < lo, lo wins.
func Clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}

	return clamp(v, lo, hi)
}
