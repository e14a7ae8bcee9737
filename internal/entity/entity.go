package entity

import (
	"time"

	"github.com/google/uuid"

	"webguide/internal/geometry"
)

type CoordSpace string

const (
	CoordSpaceDocument   CoordSpace = "document"
	CoordSpaceViewport   CoordSpace = "viewport"
	CoordSpaceScreenshot CoordSpace = "screenshot"
	CoordSpaceUnknown    CoordSpace = "unknown"
)

// ParseCoordSpace maps free-form model output onto a known space; anything
// unrecognised is CoordSpaceUnknown.
func ParseCoordSpace(s string) CoordSpace {
	switch CoordSpace(s) {
	case CoordSpaceDocument, CoordSpaceViewport, CoordSpaceScreenshot:
		return CoordSpace(s)
	}

	switch s {
	case "page", "doc", "absolute":
		return CoordSpaceDocument
	case "client", "css", "window":
		return CoordSpaceViewport
	case "image", "pixels", "screen":
		return CoordSpaceScreenshot
	}

	return CoordSpaceUnknown
}

type GuideKind string

const (
	GuideKindSteps  GuideKind = "steps"
	GuideKindAnswer GuideKind = "answer"
)

type StyleHints struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Color           string `json:"color,omitempty"`
	Cursor          string `json:"cursor,omitempty"`
}

// ElementDescriptor is one collected candidate. Rect is in absolute document
// pixels. Visible is nil when the collector could not tell.
type ElementDescriptor struct {
	Tag        string        `json:"tag"`
	Text       string        `json:"text"`
	Role       string        `json:"role,omitempty"`
	ID         string        `json:"id,omitempty"`
	Class      string        `json:"class,omitempty"`
	Selector   string        `json:"selector,omitempty"`
	IsButton   bool          `json:"isButton,omitempty"`
	InNav      bool          `json:"inNav,omitempty"`
	InHeader   bool          `json:"inHeader,omitempty"`
	Visible    *bool         `json:"visible,omitempty"`
	StyleHints StyleHints    `json:"styleHints,omitempty"`
	Rect       geometry.Rect `json:"rect"`
	Frame      string        `json:"frame,omitempty"`
}

func (e ElementDescriptor) Hidden() bool {
	return e.Visible != nil && !*e.Visible
}

// ElementSummary is index-addressable only within the snapshot identified by
// SnapshotID.
type ElementSummary struct {
	SnapshotID uuid.UUID           `json:"snapshotId"`
	Elements   []ElementDescriptor `json:"elements"`
}

func (s ElementSummary) Len() int { return len(s.Elements) }

func (s ElementSummary) Valid(index int) bool {
	return index >= 0 && index < len(s.Elements)
}

type ViewportContext struct {
	ScrollX               float64 `json:"scrollX"`
	ScrollY               float64 `json:"scrollY"`
	ViewportWidth         float64 `json:"viewportWidth"`
	ViewportHeight        float64 `json:"viewportHeight"`
	DevicePixelRatio      float64 `json:"devicePixelRatio"`
	ScreenshotPixelWidth  float64 `json:"screenshotPixelWidth,omitempty"`
	ScreenshotPixelHeight float64 `json:"screenshotPixelHeight,omitempty"`
}

// Bounds is the viewport frame in viewport space.
func (v ViewportContext) Bounds() geometry.Rect {
	return geometry.Rect{Width: v.ViewportWidth, Height: v.ViewportHeight}
}

// DPR defaults to 1 when the collector reported nothing usable.
func (v ViewportContext) DPR() float64 {
	if v.DevicePixelRatio <= 0 {
		return 1
	}

	return v.DevicePixelRatio
}

// ToViewport converts a document rect into this viewport's space.
func (v ViewportContext) ToViewport(r geometry.Rect) geometry.Rect {
	return r.Translate(-v.ScrollX, -v.ScrollY)
}

// ToDocument converts a viewport rect into document space.
func (v ViewportContext) ToDocument(r geometry.Rect) geometry.Rect {
	return r.Translate(v.ScrollX, v.ScrollY)
}

// LayoutHints carries page structure the matcher uses for positional bias.
// A zero MainLeft/MainRight means the boundary is unknown.
type LayoutHints struct {
	MainLeft  float64 `json:"mainLeft,omitempty"`
	MainRight float64 `json:"mainRight,omitempty"`
}

type Snapshot struct {
	URL        string          `json:"url"`
	Title      string          `json:"title,omitempty"`
	Summary    ElementSummary  `json:"summary"`
	Viewport   ViewportContext `json:"viewport"`
	Layout     LayoutHints     `json:"layout"`
	Screenshot []byte          `json:"-"`
	TakenAt    time.Time       `json:"takenAt"`
}

// StepProposal is one untrusted step as proposed by the instruction source.
type StepProposal struct {
	Text               string         `json:"text"`
	TargetElementIndex *int           `json:"targetElementIndex,omitempty"`
	OverlayRect        *geometry.Rect `json:"overlayRect,omitempty"`
	CoordSpace         CoordSpace     `json:"coordSpace,omitempty"`
}

// Proposal is the validated shape of one instruction-source response.
type Proposal struct {
	Kind        GuideKind      `json:"guideKind"`
	Steps       []StepProposal `json:"steps"`
	CoordSpace  CoordSpace     `json:"coordSpace"`
	Explanation string         `json:"explanation,omitempty"`
	Done        bool           `json:"done,omitempty"`
}

func (p *Proposal) IsGuide() bool {
	return p != nil && p.Kind == GuideKindSteps && len(p.Steps) > 0
}

// ResolvedOverlay is the reconciled renderable unit. Rect is in viewport
// space of the snapshot identified by SnapshotID.
type ResolvedOverlay struct {
	ElementIndex *int          `json:"elementIndex,omitempty"`
	Rect         geometry.Rect `json:"rect"`
	Label        string        `json:"label"`
	StepIndex    int           `json:"stepIndex"`
	Selector     string        `json:"selector,omitempty"`
	SnapshotID   uuid.UUID     `json:"snapshotId"`
}

// AnchorBinding names a page-side weak reference; Go only ever holds the id.
type AnchorBinding struct {
	OverlayIndex int    `json:"overlayIndex"`
	AnchorID     string `json:"anchorId,omitempty"`
	HostFrameRef string `json:"hostFrameRef,omitempty"`
}

func (b AnchorBinding) Bound() bool { return b.AnchorID != "" }

type PriorProgress struct {
	CompletedStepIndex int               `json:"completedStepIndex"`
	Overlays           []ResolvedOverlay `json:"overlays,omitempty"`
	TargetIndexes      []int             `json:"targetIndexes,omitempty"`
	PreviousURL        string            `json:"previousUrl,omitempty"`
	StepTexts          []string          `json:"stepTexts,omitempty"`
}

type InstructionRequest struct {
	InstructionText string          `json:"instructionText"`
	URL             string          `json:"url,omitempty"`
	ElementSummary  ElementSummary  `json:"elementSummary"`
	ViewportContext ViewportContext `json:"viewportContext"`
	Screenshot      []byte          `json:"-"`
	PriorProgress   *PriorProgress  `json:"priorProgress,omitempty"`
}

type SessionState string

const (
	SessionIdle                  SessionState = "idle"
	SessionAwaitingFirstProposal SessionState = "awaiting_first_proposal"
	SessionStepsVisible          SessionState = "steps_visible"
	SessionAwaitingContinuation  SessionState = "awaiting_continuation"
)

type GuideSession struct {
	SessionID           uuid.UUID
	InstructionText     string
	StepIndex           int
	LastProposal        *Proposal
	LastOverlays        []ResolvedOverlay
	PrevURL             string
	PendingContinuation bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type PageEventKind string

const (
	PageEventClick    PageEventKind = "click"
	PageEventScroll   PageEventKind = "scroll"
	PageEventResize   PageEventKind = "resize"
	PageEventNavigate PageEventKind = "navigate"
	PageEventMutation PageEventKind = "mutation"
)

// PageEvent is what the page runtime reports back through the binding.
type PageEvent struct {
	Kind    PageEventKind
	Trusted bool
	URL     string
	At      time.Time
}

type NoticeKind string

const (
	NoticeInfo     NoticeKind = "info"
	NoticeSteps    NoticeKind = "steps"
	NoticeAnswer   NoticeKind = "answer"
	NoticeComplete NoticeKind = "complete"
	NoticeError    NoticeKind = "error"
)

// Notice is a user-visible message from the session controller.
type Notice struct {
	Kind      NoticeKind
	Text      string
	Steps     []string
	SessionID uuid.UUID
}
