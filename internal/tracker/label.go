package tracker

import (
	"unicode/utf8"

	"webguide/internal/geometry"
)

const (
	labelGap       = 6
	labelHeight    = 24
	labelPadding   = 16
	labelCharWidth = 7.5
	labelMaxWidth  = 320
)

type LabelPlacement struct {
	Rect  geometry.Rect `json:"rect"`
	Below bool          `json:"below"`
}

// LabelSize estimates the rendered label box for text. The page runtime
// wraps longer labels at labelMaxWidth.
func LabelSize(text string) (float64, float64) {
	w := float64(utf8.RuneCountInString(text))*labelCharWidth + labelPadding
	if w <= labelMaxWidth {
		return w, labelHeight
	}

	lines := int(w/labelMaxWidth) + 1
	return labelMaxWidth, float64(lines) * labelHeight
}

// PlaceLabel puts a w x h label above target, flips it below when the top
// would be clipped, and clamps it horizontally inside a viewport of width vw.
func PlaceLabel(target geometry.Rect, w, h, vw float64) LabelPlacement {
	p := LabelPlacement{}

	y := target.Y - h - labelGap
	if y < 0 {
		y = target.Bottom() + labelGap
		p.Below = true
	}

	x := target.X
	if vw > 0 {
		x = geometry.Clamp(x, 0, vw-w)
	}

	p.Rect = geometry.Rect{X: x, Y: y, Width: w, Height: h}
	return p
}
