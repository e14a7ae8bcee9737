package matcher

import (
	"webguide/internal/entity"
)

const (
	minSidebarItems    = 3
	sidebarMaxLeftFrac = 0.1
	sidebarMaxWidth    = 0.35
)

// DeriveLayout fills in the main-content boundary when the collector found no
// main landmark. A column of at least three navigation elements docked near
// the left edge is taken as a sidebar, and main content starts at its right
// edge. Known hints are returned unchanged.
func DeriveLayout(summary entity.ElementSummary, vp entity.ViewportContext, known entity.LayoutHints) entity.LayoutHints {
	if known.MainLeft > 0 || known.MainRight > 0 || vp.ViewportWidth <= 0 {
		return known
	}

	var (
		count int
		right float64
		rows  = make(map[int]struct{})
	)
	for _, el := range summary.Elements {
		r := el.Rect
		if !el.InNav || el.InHeader || el.Hidden() || !r.Finite() {
			continue
		}
		if r.X-vp.ScrollX > sidebarMaxLeftFrac*vp.ViewportWidth || r.Width > sidebarMaxWidth*vp.ViewportWidth {
			continue
		}

		rows[int(r.Y)/8] = struct{}{}
		count++
		right = max(right, r.Right())
	}

	if count < minSidebarItems || len(rows) < minSidebarItems {
		return known
	}

	known.MainLeft = right
	return known
}
