package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"webguide/internal/entity"
	"webguide/internal/geometry"
)

type fakeSurface struct {
	mu        sync.Mutex
	vp        entity.ViewportContext
	anchorFor map[int]string
	elements  map[string]geometry.Rect
	block     chan struct{}
	reads     map[string]int
	count     int
	placed    []Placement
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		vp:        entity.ViewportContext{ViewportWidth: 1280, ViewportHeight: 720, DevicePixelRatio: 1},
		anchorFor: map[int]string{},
		elements:  map[string]geometry.Rect{},
		reads:     map[string]int{},
	}
}

func (f *fakeSurface) MountOverlays(_ context.Context, placements []Placement) ([]entity.AnchorBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]entity.AnchorBinding, len(placements))
	for i := range placements {
		out[i] = entity.AnchorBinding{OverlayIndex: i, AnchorID: f.anchorFor[i]}
	}
	f.count = len(placements)
	f.placed = placements
	return out, nil
}

func (f *fakeSurface) ReadAnchors(ctx context.Context, ids []string) (map[string]AnchorRead, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]AnchorRead, len(ids))
	for _, id := range ids {
		f.reads[id]++
		doc, ok := f.elements[id]
		if !ok {
			out[id] = AnchorRead{}
			continue
		}
		out[id] = AnchorRead{Rect: f.vp.ToViewport(doc), Live: true}
	}
	return out, nil
}

func (f *fakeSurface) Viewport(context.Context) (entity.ViewportContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vp, nil
}

func (f *fakeSurface) PlaceOverlays(_ context.Context, placements []Placement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = placements
	return nil
}

func (f *fakeSurface) ClearOverlays(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = 0
	f.placed = nil
	return nil
}

func (f *fakeSurface) OverlayCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeSurface) scrollTo(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vp.ScrollX, f.vp.ScrollY = x, y
}

func (f *fakeSurface) removeElement(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, id)
}

func (f *fakeSurface) readCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[id]
}

func twoOverlays() []entity.ResolvedOverlay {
	idx := 0
	return []entity.ResolvedOverlay{
		{ElementIndex: &idx, Rect: geometry.Rect{X: 100, Y: 500, Width: 120, Height: 40}, Label: "Open settings", StepIndex: 0},
		{Rect: geometry.Rect{X: 300, Y: 400, Width: 100, Height: 30}, Label: "Then this", StepIndex: 1},
	}
}

func newTracked(t *testing.T, cfg Config) (*Tracker, *fakeSurface) {
	t.Helper()
	s := newFakeSurface()
	s.anchorFor[0] = "a0"
	s.elements["a0"] = geometry.Rect{X: 100, Y: 500, Width: 120, Height: 40}
	if cfg.AnchorTimeout == 0 {
		cfg.AnchorTimeout = time.Second
	}
	return New(cfg, s, zaptest.NewLogger(t)), s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScrollMovesBoundAndUnboundOverlaysTogether(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{})

	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if tr.State() != StateTracking {
		t.Fatalf("expected tracking, got %s", tr.State())
	}
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	before := tr.Rects()

	s.scrollTo(0, 300)
	if err := tr.HandleEvent(ctx, entity.PageEvent{Kind: entity.PageEventScroll}); err != nil {
		t.Fatalf("scroll: %v", err)
	}
	after := tr.Rects()

	for i := range before {
		if d := before[i].Y - after[i].Y; d != 300 {
			t.Errorf("overlay %d: expected top to drop by 300, got %v (%v -> %v)", i, d, before[i].Y, after[i].Y)
		}
		if before[i].X != after[i].X {
			t.Errorf("overlay %d: x must not move", i)
		}
	}
	if s.readCount("a0") != 2 {
		t.Errorf("bound overlay must be read fresh every tick, reads=%d", s.readCount("a0"))
	}
}

func TestStaleAnchorFallsBackToCoordinates(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{})

	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	s.scrollTo(0, 300)
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	s.removeElement("a0")
	s.scrollTo(0, 350)
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := tr.Rects()[0].Y; got != 150 {
		t.Fatalf("expected coordinate-follow from last live rect (150), got %v", got)
	}

	reads := s.readCount("a0")
	s.scrollTo(0, 400)
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := tr.Rects()[0].Y; got != 100 {
		t.Errorf("expected 100 after further scroll, got %v", got)
	}
	if s.readCount("a0") != reads {
		t.Errorf("a lost anchor must not be read again")
	}
}

func TestAnchorReadTimeoutUsesCoordinatesForOneTick(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{AnchorTimeout: 20 * time.Millisecond})

	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}

	block := make(chan struct{})
	s.mu.Lock()
	s.block = block
	s.mu.Unlock()

	s.scrollTo(0, 100)
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := tr.Rects()[0].Y; got != 400 {
		t.Fatalf("expected coordinate fallback 400, got %v", got)
	}

	s.mu.Lock()
	s.block = nil
	s.mu.Unlock()
	close(block)

	s.scrollTo(0, 200)
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := tr.Rects()[0].Y; got != 300 {
		t.Errorf("binding must survive a slow read, expected live 300, got %v", got)
	}
}

func TestTrustedClickCompletesOnce(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{})

	completed := 0
	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{Completed: func() { completed++ }}); err != nil {
		t.Fatalf("render: %v", err)
	}

	_ = tr.HandleEvent(ctx, entity.PageEvent{Kind: entity.PageEventClick, Trusted: false})
	if tr.State() != StateTracking || completed != 0 {
		t.Fatalf("synthetic click must be ignored, state=%s completed=%d", tr.State(), completed)
	}

	_ = tr.HandleEvent(ctx, entity.PageEvent{Kind: entity.PageEventClick, Trusted: true})
	_ = tr.HandleEvent(ctx, entity.PageEvent{Kind: entity.PageEventClick, Trusted: true})

	if tr.State() != StateDismissed {
		t.Errorf("expected dismissed, got %s", tr.State())
	}
	if completed != 1 {
		t.Errorf("expected exactly one completion, got %d", completed)
	}
	if n, _ := s.OverlayCount(ctx); n != 0 {
		t.Errorf("expected no overlay nodes, got %d", n)
	}
}

func TestNavigationDismisses(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{})

	var got Reason
	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{Dismissed: func(r Reason) { got = r }}); err != nil {
		t.Fatalf("render: %v", err)
	}

	_ = tr.HandleEvent(ctx, entity.PageEvent{Kind: entity.PageEventNavigate, URL: "https://example.com/next"})

	if tr.State() != StateDismissed || got != ReasonNavigation {
		t.Fatalf("expected navigation dismissal, state=%s reason=%s", tr.State(), got)
	}
	if n, _ := s.OverlayCount(ctx); n != 0 {
		t.Errorf("expected no overlay nodes, got %d", n)
	}
}

func TestAutoDismiss(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{AutoDismiss: 30 * time.Millisecond})

	reasons := make(chan Reason, 1)
	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{Dismissed: func(r Reason) { reasons <- r }}); err != nil {
		t.Fatalf("render: %v", err)
	}

	select {
	case r := <-reasons:
		if r != ReasonTimeout {
			t.Errorf("expected timeout, got %s", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto-dismiss never fired")
	}
	if tr.State() != StateDismissed {
		t.Errorf("expected dismissed, got %s", tr.State())
	}
}

func TestRenderRestartsAutoDismiss(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{AutoDismiss: 200 * time.Millisecond})

	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if tr.State() != StateTracking {
		t.Fatalf("a new render must restart the timer, state=%s", tr.State())
	}
	waitFor(t, func() bool { return tr.State() == StateDismissed })
}

func TestTickLoopFollowsScroll(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{TickInterval: 5 * time.Millisecond})
	defer tr.Dispose(ctx)

	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	s.scrollTo(0, 250)

	waitFor(t, func() bool {
		r := tr.Rects()
		return len(r) == 2 && r[0].Y == 250 && r[1].Y == 150
	})
}

func TestAdvanceAndDispose(t *testing.T) {
	ctx := context.Background()
	tr, s := newTracked(t, Config{})

	completed := 0
	if err := tr.Render(ctx, twoOverlays(), s.vp, Handlers{Completed: func() { completed++ }}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := tr.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if tr.State() != StateAdvancing || completed != 0 {
		t.Fatalf("advance is user-driven and must not signal completion, state=%s", tr.State())
	}

	for i := 0; i < 2; i++ {
		if err := tr.Dispose(ctx); err != nil {
			t.Fatalf("dispose %d: %v", i, err)
		}
	}
	if tr.State() != StateHidden {
		t.Errorf("expected hidden, got %s", tr.State())
	}
	if n, _ := s.OverlayCount(ctx); n != 0 {
		t.Errorf("expected no overlay nodes, got %d", n)
	}
}

func TestRenderNothingStaysHidden(t *testing.T) {
	tr, s := newTracked(t, Config{})
	if err := tr.Render(context.Background(), nil, s.vp, Handlers{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if tr.State() != StateHidden {
		t.Errorf("expected hidden, got %s", tr.State())
	}
}
