package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"webguide/internal/bus"
	"webguide/internal/entity"
	"webguide/internal/geometry"
	"webguide/internal/normalizer"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
	"webguide/pkg/tracing"
)

const (
	trackerName   = "AnchorTracker"
	trackerTracer = "tracker"
)

type State string

const (
	StateHidden    State = "hidden"
	StateRendering State = "rendering"
	StateTracking  State = "tracking"
	StateAdvancing State = "advancing"
	StateDismissed State = "dismissed"
)

type Reason string

const (
	ReasonCompleted  Reason = "completed"
	ReasonNavigation Reason = "navigation"
	ReasonTimeout    Reason = "timeout"
	ReasonExplicit   Reason = "explicit"
)

type Config struct {
	TickInterval  time.Duration
	AutoDismiss   time.Duration
	AnchorTimeout time.Duration
}

// Handlers are called without the tracker lock held, at most once per
// render pass.
type Handlers struct {
	Completed func()
	Dismissed func(Reason)
}

type tracked struct {
	overlay entity.ResolvedOverlay
	binding entity.AnchorBinding
	// doc is the overlay in document pixels; coordinate-follow derives the
	// viewport rect from it and the live scroll offset.
	doc  geometry.Rect
	rect geometry.Rect
	lost bool
}

// Tracker keeps one overlay set glued to its targets. All state lives on the
// Tracker value owned by the session; nothing is global.
type Tracker struct {
	cfg     Config
	surface Surface
	reads   *bus.Command[[]string, map[string]AnchorRead]
	logger  *zap.Logger
	tracer  trace.Tracer

	mu       sync.Mutex
	state    State
	gen      uint64
	overlays []*tracked
	handlers Handlers
	timer    *time.Timer
	stop     context.CancelFunc
}

func New(cfg Config, surface Surface, logger *zap.Logger) *Tracker {
	return &Tracker{
		cfg:     cfg,
		surface: surface,
		reads:   bus.New[[]string, map[string]AnchorRead]("read_anchors", cfg.AnchorTimeout, surface.ReadAnchors),
		logger:  logger.With(zap.String(logg.Layer, trackerName)),
		tracer:  otel.Tracer(trackerTracer),
		state:   StateHidden,
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Rects returns the viewport rect of every tracked overlay as of the last
// tick, in overlay order.
func (t *Tracker) Rects() []geometry.Rect {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]geometry.Rect, len(t.overlays))
	for i, o := range t.overlays {
		out[i] = o.rect
	}
	return out
}

// Render replaces whatever is on screen with overlays, binds anchors and
// starts tracking. vp is the viewport the overlay rects are expressed in. Any
// previous pass is cancelled and the auto-dismiss timer restarts.
func (t *Tracker) Render(ctx context.Context, overlays []entity.ResolvedOverlay, vp entity.ViewportContext, h Handlers) (err error) {
	const op = "Render"
	logger := t.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, t.tracer, logger, op, attribute.Int("overlays", len(overlays)))
	defer func() {
		step.End(err)
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	t.overlays = nil
	t.handlers = h

	if len(overlays) == 0 {
		t.state = StateHidden
		return t.surface.ClearOverlays(ctx)
	}

	t.state = StateRendering

	placements := make([]Placement, len(overlays))
	for i, ov := range overlays {
		placements[i] = placement(i, ov, ov.Rect, "", vp)
	}

	bindings, err := t.surface.MountOverlays(ctx, placements)
	if err != nil {
		t.state = StateHidden
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mount_failed",
			apperr.MetaStage:  apperr.StageRender,
		})
	}

	t.overlays = make([]*tracked, len(overlays))
	bound := 0
	for i, ov := range overlays {
		tr := &tracked{overlay: ov, doc: vp.ToDocument(ov.Rect), rect: ov.Rect}
		if i < len(bindings) && bindings[i].Bound() {
			tr.binding = bindings[i]
			bound++
		}
		t.overlays[i] = tr
	}

	step.SetAttributes(attribute.Int("bound", bound))
	logger.Debug("Overlays mounted", zap.Int("count", len(overlays)), zap.Int("bound", bound))

	t.state = StateTracking
	t.startLocked()

	return nil
}

// Tick recomputes every overlay rect once: from a fresh anchor read where a
// live binding exists, otherwise from document coordinates and the current
// scroll.
func (t *Tracker) Tick(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.tickLocked(ctx, t.gen)
}

func (t *Tracker) tickLocked(ctx context.Context, gen uint64) error {
	const op = "Tick"

	if t.state != StateTracking || gen != t.gen {
		return nil
	}

	vp, err := t.surface.Viewport(ctx)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "viewport_read_failed",
			apperr.MetaStage:  apperr.StageTracking,
		})
	}

	var ids []string
	for _, o := range t.overlays {
		if o.binding.Bound() && !o.lost {
			ids = append(ids, o.binding.AnchorID)
		}
	}

	var reads map[string]AnchorRead
	if len(ids) > 0 {
		reads, err = t.reads.Call(ctx, ids)
		if err != nil {
			// Coordinates only for this tick; bindings stay as they are.
			t.logger.Debug("anchor read failed", zap.String(logg.Operation, op), zap.Error(err))
			reads = nil
		}
	}

	placements := make([]Placement, len(t.overlays))
	for i, o := range t.overlays {
		anchorID := ""
		if o.binding.Bound() && !o.lost && reads != nil {
			read, ok := reads[o.binding.AnchorID]
			if ok && read.Live && read.Rect.Finite() {
				o.rect = read.Rect
				o.doc = vp.ToDocument(read.Rect)
				anchorID = o.binding.AnchorID
			} else {
				o.lost = true
				t.logger.Info("anchor lost, following coordinates",
					zap.String(logg.Operation, op),
					zap.Int(logg.StepIndex, o.overlay.StepIndex),
					zap.String(logg.Reason, apperr.CodeStaleAnchor),
				)
			}
		}

		if anchorID == "" {
			if rect, ok := normalizer.Resolve(o.doc, entity.CoordSpaceDocument, vp, vp); ok {
				o.rect = rect
			}
		}

		placements[i] = placement(i, o.overlay, o.rect, anchorID, vp)
	}

	return t.surface.PlaceOverlays(ctx, placements)
}

// HandleEvent applies one page event. Scroll, resize and mutation re-run the
// tick; the first trusted click completes the step; navigation dismisses.
func (t *Tracker) HandleEvent(ctx context.Context, ev entity.PageEvent) error {
	switch ev.Kind {
	case entity.PageEventNavigate:
		return t.Dismiss(ctx, ReasonNavigation)
	case entity.PageEventClick:
		if !ev.Trusted {
			return nil
		}
		return t.finish(ctx, StateDismissed, ReasonCompleted, anyPass)
	default:
		return t.Tick(ctx)
	}
}

// Advance clears the overlays because the user asked for the next step.
func (t *Tracker) Advance(ctx context.Context) error {
	return t.finish(ctx, StateAdvancing, ReasonCompleted, anyPass)
}

func (t *Tracker) Dismiss(ctx context.Context, reason Reason) error {
	return t.finish(ctx, StateDismissed, reason, anyPass)
}

// anyPass lets finish act on whichever render pass is current. Generations
// start at 1 once something was rendered.
const anyPass = 0

func (t *Tracker) finish(ctx context.Context, to State, reason Reason, gen uint64) error {
	const op = "finish"

	t.mu.Lock()
	if (t.state != StateTracking && t.state != StateRendering) || (gen != anyPass && gen != t.gen) {
		t.mu.Unlock()
		return nil
	}

	t.stopLocked()
	t.gen++
	t.state = to
	t.overlays = nil
	h := t.handlers
	t.handlers = Handlers{}
	err := t.surface.ClearOverlays(ctx)
	t.mu.Unlock()

	t.logger.Debug("Overlays cleared",
		zap.String(logg.Operation, op),
		zap.String(logg.State, string(to)),
		zap.String(logg.Reason, string(reason)),
	)

	switch {
	case reason == ReasonCompleted && to == StateDismissed && h.Completed != nil:
		h.Completed()
	case reason != ReasonCompleted && h.Dismissed != nil:
		h.Dismissed(reason)
	}

	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "clear_failed",
			apperr.MetaStage:  apperr.StageRender,
		})
	}
	return nil
}

// Dispose stops tracking and removes every overlay node. It is safe to call
// at any time and any number of times.
func (t *Tracker) Dispose(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	t.state = StateHidden
	t.overlays = nil
	t.handlers = Handlers{}

	if err := t.surface.ClearOverlays(ctx); err != nil {
		return apperr.Wrap("Dispose", apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "clear_failed",
			apperr.MetaStage:  apperr.StageRender,
		})
	}
	return nil
}

func (t *Tracker) startLocked() {
	gen := t.gen

	if t.cfg.AutoDismiss > 0 {
		t.timer = time.AfterFunc(t.cfg.AutoDismiss, func() {
			_ = t.finish(context.Background(), StateDismissed, ReasonTimeout, gen)
		})
	}

	if t.cfg.TickInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.stop = cancel
		go t.loop(ctx, gen)
	}
}

func (t *Tracker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

func (t *Tracker) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			err := t.tickLocked(ctx, gen)
			t.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Debug("tick failed", zap.Error(err))
			}
		}
	}
}

func placement(i int, ov entity.ResolvedOverlay, rect geometry.Rect, anchorID string, vp entity.ViewportContext) Placement {
	w, h := LabelSize(ov.Label)
	return Placement{
		OverlayIndex: i,
		StepIndex:    ov.StepIndex,
		Rect:         rect,
		Label:        ov.Label,
		LabelRect:    PlaceLabel(rect, w, h, vp.ViewportWidth),
		Selector:     ov.Selector,
		AnchorID:     anchorID,
	}
}
