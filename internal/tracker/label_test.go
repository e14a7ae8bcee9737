package tracker

import (
	"testing"

	"webguide/internal/geometry"
)

func TestPlaceLabel(t *testing.T) {
	tests := []struct {
		name      string
		target    geometry.Rect
		w, h, vw  float64
		wantX     float64
		wantY     float64
		wantBelow bool
	}{
		{
			name:   "above by default",
			target: geometry.Rect{X: 100, Y: 200, Width: 80, Height: 30},
			w:      120, h: 24, vw: 1280,
			wantX: 100, wantY: 170,
		},
		{
			name:   "flips below at the top edge",
			target: geometry.Rect{X: 100, Y: 10, Width: 80, Height: 30},
			w:      120, h: 24, vw: 1280,
			wantX: 100, wantY: 46, wantBelow: true,
		},
		{
			name:   "clamped at the right edge",
			target: geometry.Rect{X: 1250, Y: 200, Width: 20, Height: 20},
			w:      120, h: 24, vw: 1280,
			wantX: 1160, wantY: 170,
		},
		{
			name:   "clamped at the left edge",
			target: geometry.Rect{X: -40, Y: 200, Width: 80, Height: 30},
			w:      120, h: 24, vw: 1280,
			wantX: 0, wantY: 170,
		},
		{
			name:   "wider than the viewport pins to zero",
			target: geometry.Rect{X: 50, Y: 200, Width: 80, Height: 30},
			w:      400, h: 24, vw: 300,
			wantX: 0, wantY: 170,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlaceLabel(tt.target, tt.w, tt.h, tt.vw)
			if got.Rect.X != tt.wantX || got.Rect.Y != tt.wantY || got.Below != tt.wantBelow {
				t.Errorf("got %+v below=%v, want x=%v y=%v below=%v", got.Rect, got.Below, tt.wantX, tt.wantY, tt.wantBelow)
			}
		})
	}
}

func TestLabelSizeWraps(t *testing.T) {
	w, h := LabelSize("Save")
	if w != 4*labelCharWidth+labelPadding || h != labelHeight {
		t.Errorf("short label: got %vx%v", w, h)
	}

	long := make([]rune, 100)
	for i := range long {
		long[i] = '가'
	}
	w, h = LabelSize(string(long))
	if w != labelMaxWidth || h <= labelHeight {
		t.Errorf("long label must wrap: got %vx%v", w, h)
	}
}
