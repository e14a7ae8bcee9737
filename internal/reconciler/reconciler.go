package reconciler

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"webguide/internal/entity"
	"webguide/internal/geometry"
	"webguide/internal/matcher"
	"webguide/internal/normalizer"
	"webguide/pkg/logg"
)

const reconcilerName = "Reconciler"

type Outcome string

const (
	OutcomeResolved   Outcome = "resolved"
	OutcomeTextOnly   Outcome = "text_only"
	OutcomeUnresolved Outcome = "unresolved"
)

// Source names the pass that produced a step's target.
type Source string

const (
	SourceNone       Source = ""
	SourceModelIndex Source = "model_index"
	SourceModelRect  Source = "model_rect"
	SourceMatcher    Source = "matcher"
	SourceOverlap    Source = "overlap"
	SourceCorrected  Source = "corrected"
)

type Params struct {
	// A model rectangle wider or taller than this share of the viewport is
	// not trusted when an index is also present.
	MaxCoverFraction float64
	// Model rectangles whose top sits above this line are treated as
	// anchored to the masthead.
	TopBand float64
}

func DefaultParams() Params {
	return Params{MaxCoverFraction: 0.8, TopBand: 24}
}

type Input struct {
	Proposal *entity.Proposal
	// Snapshot is the capture the proposal was produced against.
	Snapshot *entity.Snapshot
	// Current is the live viewport. Zero means unchanged since capture.
	Current entity.ViewportContext
}

type StepReport struct {
	StepIndex    int     `json:"stepIndex"`
	Outcome      Outcome `json:"outcome"`
	Source       Source  `json:"source,omitempty"`
	ElementIndex *int    `json:"elementIndex,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

type Result struct {
	Overlays []entity.ResolvedOverlay `json:"overlays"`
	// TargetIndexes has one entry per step, -1 where no element was chosen.
	TargetIndexes []int        `json:"targetIndexes"`
	Report        []StepReport `json:"report"`
}

type Reconciler struct {
	params     Params
	matcher    *matcher.Matcher
	normalizer *normalizer.Normalizer
	logger     *zap.Logger
}

func New(params Params, m *matcher.Matcher, n *normalizer.Normalizer, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		params:     params,
		matcher:    m,
		normalizer: n,
		logger:     logger.With(zap.String(logg.Layer, reconcilerName)),
	}
}

// step is the working state of one proposal step across passes.
type step struct {
	text   string
	space  entity.CoordSpace
	model  *geometry.Rect
	index  int
	rect   *geometry.Rect
	source Source
	score  float64
	failed bool
}

// Reconcile turns an untrusted proposal into renderable overlays. It never
// fails: steps that cannot be placed are reported as text_only or
// unresolved and produce no overlay.
func (r *Reconciler) Reconcile(in Input) Result {
	const op = "Reconcile"
	logger := r.logger.With(zap.String(logg.Operation, op))

	if !in.Proposal.IsGuide() || in.Snapshot == nil {
		return Result{}
	}

	capture := in.Snapshot.Viewport
	current := in.Current
	if current.ViewportWidth <= 0 || current.ViewportHeight <= 0 {
		current = capture
	}
	summary := in.Snapshot.Summary
	hints := matcher.Hints{
		Layout:   matcher.DeriveLayout(summary, capture, in.Snapshot.Layout),
		Viewport: capture,
	}

	steps := make([]*step, len(in.Proposal.Steps))
	claimed := make(map[int]bool)
	for i, sp := range in.Proposal.Steps {
		s := &step{text: sp.Text, index: -1, space: sp.CoordSpace}
		if s.space == "" {
			s.space = in.Proposal.CoordSpace
		}
		if s.space == "" {
			s.space = entity.CoordSpaceUnknown
		}
		if sp.OverlayRect != nil && sp.OverlayRect.Finite() {
			m := *sp.OverlayRect
			s.model = &m
		}
		if idx := sp.TargetElementIndex; idx != nil {
			if summary.Valid(*idx) && !claimed[*idx] {
				s.index = *idx
				claimed[*idx] = true
			} else {
				logger.Info("dropping invalid target index",
					zap.Int(logg.StepIndex, i), zap.Int("index", *idx))
			}
		}
		steps[i] = s
	}

	r.fromIndexes(steps, summary, current, capture)
	r.fromMatcher(steps, summary, hints, current, claimed)
	r.fromOverlap(steps, summary, current, capture, claimed)
	r.correctSuspicious(steps, summary, hints, current, claimed, logger)

	return r.collect(steps, in.Snapshot, current, logger)
}

// fromIndexes rebuilds the rectangle of indexed steps from the element,
// unless the model's own rectangle resolves to something reasonable.
func (r *Reconciler) fromIndexes(steps []*step, summary entity.ElementSummary, current, capture entity.ViewportContext) {
	for _, s := range steps {
		if s.index < 0 {
			continue
		}
		s.source = SourceModelIndex

		if s.model != nil {
			if rect, ok := r.normalizer.Resolve(*s.model, s.space, current, capture); ok && r.reasonable(rect, current) {
				s.rect = &rect
				continue
			}
		}

		rect := elementRect(summary, s.index, current)
		s.rect = &rect
	}
}

func (r *Reconciler) reasonable(rect geometry.Rect, vp entity.ViewportContext) bool {
	if !rect.Finite() {
		return false
	}
	if rect.Width > r.params.MaxCoverFraction*vp.ViewportWidth || rect.Height > r.params.MaxCoverFraction*vp.ViewportHeight {
		return false
	}
	return rect.Y >= r.params.TopBand
}

// fromMatcher fills steps that carry neither an index nor a rectangle.
func (r *Reconciler) fromMatcher(steps []*step, summary entity.ElementSummary, hints matcher.Hints, current entity.ViewportContext, claimed map[int]bool) {
	for _, s := range steps {
		if s.index >= 0 || s.model != nil || s.text == "" {
			continue
		}

		c, ok := r.matcher.Match(s.text, summary, hints, claimed)
		if !ok {
			continue
		}

		claimed[c.Index] = true
		s.index = c.Index
		s.score = c.Score
		s.source = SourceMatcher
		rect := elementRect(summary, c.Index, current)
		s.rect = &rect
	}
}

// fromOverlap gives rectangle-only steps the element their rectangle
// overlaps best. A step with zero overlap keeps its rectangle unbound.
func (r *Reconciler) fromOverlap(steps []*step, summary entity.ElementSummary, current, capture entity.ViewportContext, claimed map[int]bool) {
	for _, s := range steps {
		if s.index >= 0 || s.model == nil {
			continue
		}

		resolved, ok := r.normalizer.Resolve(*s.model, s.space, current, capture)
		if ok {
			s.rect = &resolved
			s.source = SourceModelRect
		}

		idx, iou := BestOverlap(*s.model, s.space, summary, capture, claimed)
		if idx < 0 {
			s.failed = !ok
			continue
		}

		claimed[idx] = true
		s.index = idx
		s.score = iou
		s.source = SourceOverlap
		if !ok {
			rect := elementRect(summary, idx, current)
			s.rect = &rect
		}
	}
}

// BestOverlap returns the unclaimed element whose document rectangle has the
// highest IoU with rect read either as document space or as capture viewport
// space plus the capture scroll. Screenshot rectangles are scaled first.
// It returns -1 when nothing overlaps.
func BestOverlap(rect geometry.Rect, space entity.CoordSpace, summary entity.ElementSummary, capture entity.ViewportContext, claimed map[int]bool) (int, float64) {
	if space == entity.CoordSpaceScreenshot {
		sx, sy := normalizer.ScreenshotScale(capture)
		rect = rect.Scale(sx, sy)
	}

	hypotheses := []geometry.Rect{rect, capture.ToDocument(rect)}

	best, bestIoU := -1, 0.0
	for i, el := range summary.Elements {
		if claimed[i] || !el.Rect.Finite() {
			continue
		}
		for _, h := range hypotheses {
			if iou := h.IoU(el.Rect); iou > bestIoU {
				best, bestIoU = i, iou
			}
		}
	}

	return best, bestIoU
}

// correctSuspicious re-targets steps whose element looks like chrome or a
// container. A replacement must beat the current element's score strictly;
// ties keep the original.
func (r *Reconciler) correctSuspicious(
	steps []*step,
	summary entity.ElementSummary,
	hints matcher.Hints,
	current entity.ViewportContext,
	claimed map[int]bool,
	logger *zap.Logger,
) {
	threshold := r.matcher.Threshold()

	for i, s := range steps {
		if s.index < 0 || s.text == "" {
			continue
		}

		q := r.matcher.NewQuery(s.text)
		el := summary.Elements[s.index]
		currentScore := math.Inf(-1)
		if q.Eligible(matcher.Normalize(el.Text)) {
			currentScore = r.matcher.Score(q, el, hints)
		}

		if !r.suspicious(el, hints) && currentScore >= threshold {
			continue
		}

		for _, c := range r.matcher.Rank(s.text, summary, hints) {
			if c.Score < threshold || c.Score <= currentScore {
				break
			}
			if claimed[c.Index] && c.Index != s.index {
				continue
			}
			if c.Index == s.index {
				break
			}

			logger.Info("replacing suspicious target",
				zap.Int(logg.StepIndex, i),
				zap.Int("from", s.index),
				zap.Int("to", c.Index),
				zap.Float64("from_score", currentScore),
				zap.Float64("to_score", c.Score),
			)

			delete(claimed, s.index)
			claimed[c.Index] = true
			s.index = c.Index
			s.score = c.Score
			s.source = SourceCorrected
			rect := elementRect(summary, c.Index, current)
			s.rect = &rect
			break
		}
	}
}

func (r *Reconciler) suspicious(el entity.ElementDescriptor, hints matcher.Hints) bool {
	if el.InNav || el.InHeader {
		return true
	}

	vp := hints.Viewport
	if vp.ViewportWidth > 0 && vp.ViewportHeight > 0 {
		if el.Rect.Width > r.params.MaxCoverFraction*vp.ViewportWidth || el.Rect.Height > r.params.MaxCoverFraction*vp.ViewportHeight {
			return true
		}
	}

	cx, _ := el.Rect.Center()
	return hints.Layout.MainLeft > 0 && cx < hints.Layout.MainLeft
}

func (r *Reconciler) collect(steps []*step, snap *entity.Snapshot, current entity.ViewportContext, logger *zap.Logger) Result {
	res := Result{
		TargetIndexes: make([]int, len(steps)),
		Report:        make([]StepReport, len(steps)),
	}

	for i, s := range steps {
		rep := StepReport{StepIndex: i, Source: s.source, Score: s.score}
		res.TargetIndexes[i] = s.index

		switch {
		case s.rect != nil:
			rep.Outcome = OutcomeResolved
		case s.failed:
			rep.Outcome = OutcomeUnresolved
			logger.Info("step rectangle unresolved", zap.Int(logg.StepIndex, i))
		default:
			rep.Outcome = OutcomeTextOnly
			logger.Info("step has no confident target", zap.Int(logg.StepIndex, i))
		}

		if s.index >= 0 {
			idx := s.index
			rep.ElementIndex = &idx
		}
		res.Report[i] = rep

		if s.rect == nil {
			continue
		}

		rect := *s.rect
		if current.ViewportWidth > 0 && current.ViewportHeight > 0 {
			rect = rect.ClampTo(current.ViewportWidth, current.ViewportHeight)
		}
		ov := entity.ResolvedOverlay{
			Rect:       rect,
			Label:      label(i, s.text),
			StepIndex:  i,
			SnapshotID: snap.Summary.SnapshotID,
		}
		if s.index >= 0 {
			idx := s.index
			ov.ElementIndex = &idx
			ov.Selector = snap.Summary.Elements[idx].Selector
		}
		res.Overlays = append(res.Overlays, ov)
	}

	return res
}

func elementRect(summary entity.ElementSummary, index int, vp entity.ViewportContext) geometry.Rect {
	return vp.ToViewport(summary.Elements[index].Rect)
}

func label(i int, text string) string {
	if text == "" {
		return fmt.Sprintf("Step %d", i+1)
	}
	return text
}
