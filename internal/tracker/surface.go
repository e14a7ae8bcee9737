package tracker

import (
	"context"

	"webguide/internal/entity"
	"webguide/internal/geometry"
)

// Placement is one highlight box plus its label, in viewport pixels.
type Placement struct {
	OverlayIndex int            `json:"overlayIndex"`
	StepIndex    int            `json:"stepIndex"`
	Rect         geometry.Rect  `json:"rect"`
	Label        string         `json:"label"`
	LabelRect    LabelPlacement `json:"labelRect"`
	Selector     string         `json:"selector,omitempty"`
	// AnchorID is set once the overlay is bound. Boxes move only when the
	// tracker places them again from a fresh ReadAnchors on its tick.
	AnchorID string `json:"anchorId,omitempty"`
}

// AnchorRead is a fresh bounding rect of an anchored element in viewport
// pixels. Live is false when the element was collected, detached or its
// frame navigated.
type AnchorRead struct {
	Rect geometry.Rect `json:"rect"`
	Live bool          `json:"live"`
}

// Surface is the page's visual layer. Implementations only ever add or remove
// their own nodes.
type Surface interface {
	// MountOverlays replaces every overlay node with placements and tries to
	// bind each one to the element under its centre (or its selector). It
	// returns one binding per placement, unbound where nothing was hit.
	MountOverlays(ctx context.Context, placements []Placement) ([]entity.AnchorBinding, error)
	ReadAnchors(ctx context.Context, anchorIDs []string) (map[string]AnchorRead, error)
	Viewport(ctx context.Context) (entity.ViewportContext, error)
	PlaceOverlays(ctx context.Context, placements []Placement) error
	ClearOverlays(ctx context.Context) error
	OverlayCount(ctx context.Context) (int, error)
}
