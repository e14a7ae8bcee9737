// Package normalizer maps a model-supplied rectangle onto the live viewport.
//
// The producing side may express coordinates in document, viewport or
// screenshot pixels and the capture-time viewport may differ from the current
// one. Each plausible reading of the rectangle is a Hypothesis; hypotheses
// are scored against the current viewport bounds and the best one wins.
package normalizer

import (
	"sort"

	"webguide/internal/entity"
	"webguide/internal/geometry"
)

// Params holds the plausibility thresholds of the intersection score.
type Params struct {
	// MinVisibleFraction is the share of the rectangle that must fall
	// inside the viewport; below it the hypothesis scores zero.
	MinVisibleFraction float64
	// MaxAreaFraction rejects rectangles covering more of the viewport.
	MaxAreaFraction float64
	// MinSide rejects rectangles thinner than this many CSS pixels.
	MinSide float64
}

func DefaultParams() Params {
	return Params{
		MinVisibleFraction: 0.5,
		MaxAreaFraction:    0.9,
		MinSide:            4,
	}
}

type Hypothesis struct {
	Name  string
	Rect  geometry.Rect
	Score float64
}

type Normalizer struct {
	params Params
}

func New(params Params) *Normalizer {
	return &Normalizer{params: params}
}

var defaultNormalizer = New(DefaultParams())

// Resolve uses the default parameters. See Normalizer.Resolve.
func Resolve(rect geometry.Rect, space entity.CoordSpace, current, capture entity.ViewportContext) (geometry.Rect, bool) {
	return defaultNormalizer.Resolve(rect, space, current, capture)
}

// Candidates uses the default parameters. See Normalizer.Candidates.
func Candidates(rect geometry.Rect, space entity.CoordSpace, current, capture entity.ViewportContext) []Hypothesis {
	return defaultNormalizer.Candidates(rect, space, current, capture)
}

// Resolve returns rect expressed in the current viewport, clamped to one
// viewport extent on each side. The bool is false when the step must be
// treated as unresolved.
func (n *Normalizer) Resolve(rect geometry.Rect, space entity.CoordSpace, current, capture entity.ViewportContext) (geometry.Rect, bool) {
	if !rect.Finite() {
		return geometry.Rect{}, false
	}

	switch space {
	case entity.CoordSpaceDocument:
		return n.clamp(current.ToViewport(rect), current), true
	case entity.CoordSpaceViewport:
		return n.clamp(rect, current), true
	}

	ranked := n.Candidates(rect, space, current, capture)
	if len(ranked) == 0 || ranked[0].Score <= 0 {
		return geometry.Rect{}, false
	}

	return n.clamp(ranked[0].Rect, current), true
}

// Candidates lists every hypothesis for rect under space, best first. Ties
// keep declaration order. Document and viewport spaces produce a single
// unscored-by-rejection hypothesis.
func (n *Normalizer) Candidates(rect geometry.Rect, space entity.CoordSpace, current, capture entity.ViewportContext) []Hypothesis {
	var hyps []Hypothesis

	switch space {
	case entity.CoordSpaceDocument:
		hyps = []Hypothesis{{Name: "document", Rect: current.ToViewport(rect)}}
	case entity.CoordSpaceViewport:
		hyps = []Hypothesis{{Name: "viewport", Rect: rect}}
	case entity.CoordSpaceScreenshot:
		hyps = screenshotHypotheses(rect, current, capture)
	default:
		hyps = unknownHypotheses(rect, current)
	}

	for i := range hyps {
		hyps[i].Score = n.Score(hyps[i].Rect, current)
	}

	sort.SliceStable(hyps, func(i, j int) bool {
		return hyps[i].Score > hyps[j].Score
	})

	return hyps
}

// Score is the intersection score of a viewport-space rect against the
// current viewport bounds: the visible fraction of the rect, or zero when the
// rect is mostly off-viewport, absurdly large or tiny.
func (n *Normalizer) Score(r geometry.Rect, current entity.ViewportContext) float64 {
	if !r.Finite() || r.Width < n.params.MinSide || r.Height < n.params.MinSide {
		return 0
	}

	bounds := current.Bounds()
	if bounds.Area() == 0 {
		return 0
	}

	if r.Area() > n.params.MaxAreaFraction*bounds.Area() {
		return 0
	}

	visible := r.Intersect(bounds).Area() / r.Area()
	if visible < n.params.MinVisibleFraction {
		return 0
	}

	return visible
}

func (n *Normalizer) clamp(r geometry.Rect, current entity.ViewportContext) geometry.Rect {
	return r.ClampTo(current.ViewportWidth, current.ViewportHeight)
}

// ScreenshotScale is the screenshot-pixel to CSS-pixel ratio for the current
// viewport. Without screenshot dimensions it falls back to the DPR.
func ScreenshotScale(current entity.ViewportContext) (float64, float64) {
	sx, sy := current.DPR(), current.DPR()

	if current.ScreenshotPixelWidth > 0 && current.ViewportWidth > 0 {
		sx = current.ScreenshotPixelWidth / current.ViewportWidth
	}

	if current.ScreenshotPixelHeight > 0 && current.ViewportHeight > 0 {
		sy = current.ScreenshotPixelHeight / current.ViewportHeight
	}

	return sx, sy
}

func screenshotHypotheses(rect geometry.Rect, current, capture entity.ViewportContext) []Hypothesis {
	if capture.ViewportWidth == 0 {
		capture = current
	}

	sx, sy := ScreenshotScale(screenshotFrame(current, capture))
	scaled := rect.Scale(sx, sy)

	dx := current.ScrollX - capture.ScrollX
	dy := current.ScrollY - capture.ScrollY

	return []Hypothesis{
		{Name: "screenshot_scroll_compensated", Rect: scaled.Translate(-dx, -dy)},
		{Name: "screenshot", Rect: scaled},
	}
}

// screenshotFrame is current carrying the screenshot dimensions. Only the
// capture records them; a live viewport read does not.
func screenshotFrame(current, capture entity.ViewportContext) entity.ViewportContext {
	if current.ScreenshotPixelWidth <= 0 || current.ScreenshotPixelHeight <= 0 {
		current.ScreenshotPixelWidth = capture.ScreenshotPixelWidth
		current.ScreenshotPixelHeight = capture.ScreenshotPixelHeight
	}
	if current.ViewportWidth <= 0 || current.ViewportHeight <= 0 {
		current.ViewportWidth = capture.ViewportWidth
		current.ViewportHeight = capture.ViewportHeight
	}
	if current.DevicePixelRatio <= 0 {
		current.DevicePixelRatio = capture.DevicePixelRatio
	}
	return current
}

func unknownHypotheses(rect geometry.Rect, current entity.ViewportContext) []Hypothesis {
	hyps := []Hypothesis{
		{Name: "viewport", Rect: rect},
		{Name: "document", Rect: current.ToViewport(rect)},
	}

	if dpr := current.DPR(); dpr != 1 {
		scaled := rect.Scale(dpr, dpr)
		hyps = append(hyps,
			Hypothesis{Name: "viewport_dpr", Rect: scaled},
			Hypothesis{Name: "document_dpr", Rect: current.ToViewport(scaled)},
		)
	}

	return hyps
}
