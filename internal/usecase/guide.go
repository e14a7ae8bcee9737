package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/bus"
	"webguide/internal/config"
	"webguide/internal/entity"
	"webguide/internal/ports"
	"webguide/internal/reconciler"
	"webguide/internal/tracker"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
	"webguide/pkg/tracing"
)

const (
	guideServiceName = "GuideService"
	guideTracer      = "usecase.guide"

	// anyEpoch lets a continuation run against whatever session is current.
	anyEpoch = ^uint64(0)
)

// GuideService is the session controller. It owns the only GuideSession and
// the tracker rendering it; every transition to Idle disposes both.
type GuideService struct {
	cfg        *config.GuideConfig
	logger     *zap.Logger
	tracer     trace.Tracer
	browser    ports.BrowserManager
	notifier   ports.Notifier
	tracker    *tracker.Tracker
	reconciler *reconciler.Reconciler
	snapshot   *bus.Command[struct{}, *entity.Snapshot]
	propose    *bus.Command[entity.InstructionRequest, *entity.Proposal]

	mu      sync.Mutex
	state   entity.SessionState
	session *entity.GuideSession
	targets []int
	epoch   uint64
	cancel  context.CancelFunc
	idle    *time.Timer

	wg sync.WaitGroup
}

type GuideServiceParams struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Browser    ports.BrowserManager
	Source     ports.InstructionSource
	Notifier   ports.Notifier
	Tracker    *tracker.Tracker
	Reconciler *reconciler.Reconciler
}

func NewGuideService(params GuideServiceParams) *GuideService {
	cfg := params.Config.GuideConfig

	return &GuideService{
		cfg:        cfg,
		logger:     params.Logger.With(zap.String(logg.Layer, guideServiceName)),
		tracer:     otel.Tracer(guideTracer),
		browser:    params.Browser,
		notifier:   params.Notifier,
		tracker:    params.Tracker,
		reconciler: params.Reconciler,
		snapshot: bus.New[struct{}, *entity.Snapshot]("snapshot", cfg.SnapshotTimeout, func(ctx context.Context, _ struct{}) (*entity.Snapshot, error) {
			return params.Browser.Snapshot(ctx)
		}),
		propose: bus.New[entity.InstructionRequest, *entity.Proposal]("propose", cfg.RequestTimeout, params.Source.Propose),
		state:   entity.SessionIdle,
	}
}

func (s *GuideService) State() entity.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Session returns a copy of the active session, or nil when idle.
func (s *GuideService) Session() *entity.GuideSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Enter starts guidance for instruction, replacing any active session.
func (s *GuideService) Enter(ctx context.Context, instruction string) (err error) {
	const op = "Enter"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("instruction", instruction))
	defer func() {
		step.End(err)
	}()

	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return apperr.InvalidReqError(op, "instruction", errors.New("instruction cannot be empty"))
	}

	if !s.browser.IsReady() {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	s.mu.Lock()
	s.idleLocked(ctx, "replaced")

	now := time.Now()
	s.session = &entity.GuideSession{
		SessionID:       uuid.New(),
		InstructionText: instruction,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.transitionLocked(entity.SessionAwaitingFirstProposal)
	reqCtx, epoch := s.beginRequestLocked(ctx)
	s.mu.Unlock()

	step.AddEvent("session created")

	return s.round(reqCtx, epoch, instruction, nil)
}

// Next is the explicit "show next" action.
func (s *GuideService) Next(ctx context.Context) error {
	return s.continueRound(ctx, "Next", true)
}

// StepCompleted is the trusted-click progression signal. The tracker has
// already cleared the overlays.
func (s *GuideService) StepCompleted(ctx context.Context) error {
	return s.continueRound(ctx, "StepCompleted", false)
}

func (s *GuideService) ToggleOff(ctx context.Context) error {
	s.mu.Lock()
	wasActive := s.state != entity.SessionIdle
	s.idleLocked(ctx, "toggle_off")
	s.mu.Unlock()

	if wasActive {
		s.notify(ctx, entity.Notice{Kind: entity.NoticeInfo, Text: "Guidance turned off."})
	}
	return nil
}

func (s *GuideService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idleLocked(ctx, "reset")
	return nil
}

// HandleNavigation ends the session unless a request is in flight; the click
// that completed a step often navigates, so the overlays are dropped but the
// continuation carries on against the new page.
func (s *GuideService) HandleNavigation(ctx context.Context, url string) error {
	const op = "HandleNavigation"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.state == entity.SessionIdle {
		return nil
	}

	if s.session.PendingContinuation || s.state == entity.SessionAwaitingFirstProposal {
		logger.Debug("Navigation while a request is in flight")
		return s.tracker.Dismiss(ctx, tracker.ReasonNavigation)
	}

	s.idleLocked(ctx, "navigation")
	return nil
}

// HandlePageEvent routes one event from the page runtime.
func (s *GuideService) HandlePageEvent(ctx context.Context, ev entity.PageEvent) error {
	if ev.Kind == entity.PageEventNavigate {
		return s.HandleNavigation(ctx, ev.URL)
	}

	if ev.Kind == entity.PageEventClick && ev.Trusted {
		s.mu.Lock()
		s.touchLocked()
		s.mu.Unlock()
	}

	return s.tracker.HandleEvent(ctx, ev)
}

// Close forces Idle and waits for continuations started by page clicks.
func (s *GuideService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.idleLocked(ctx, "shutdown")
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// continuation is a claimed "next round": the session is already marked
// pending, so a navigation arriving before the round starts keeps it alive.
type continuation struct {
	ctx         context.Context
	epoch       uint64
	sessionID   string
	instruction string
	prevURL     string
	prior       *entity.PriorProgress
}

func (s *GuideService) continueRound(ctx context.Context, op string, advance bool) error {
	s.mu.Lock()
	c, err := s.claimLocked(ctx, op, anyEpoch)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.runContinuation(ctx, op, c, advance)
}

func (s *GuideService) claimLocked(ctx context.Context, op string, epoch uint64) (*continuation, error) {
	switch {
	case s.session == nil || s.state == entity.SessionIdle || (epoch != anyEpoch && epoch != s.epoch):
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeInvalidState, "no_active_session")
	case s.session.PendingContinuation || s.state == entity.SessionAwaitingFirstProposal:
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBusy, "continuation_in_flight")
	}

	sess := s.session
	sess.PendingContinuation = true
	sess.UpdatedAt = time.Now()

	var prior *entity.PriorProgress
	if sess.LastProposal != nil {
		prior = &entity.PriorProgress{
			CompletedStepIndex: sess.StepIndex,
			Overlays:           sess.LastOverlays,
			TargetIndexes:      s.targets,
			PreviousURL:        sess.PrevURL,
			StepTexts:          stepTexts(sess.LastProposal),
		}
	}

	reqCtx, reqEpoch := s.beginRequestLocked(ctx)

	return &continuation{
		ctx:         reqCtx,
		epoch:       reqEpoch,
		sessionID:   sess.SessionID.String(),
		instruction: sess.InstructionText,
		prevURL:     sess.PrevURL,
		prior:       prior,
	}, nil
}

func (s *GuideService) runContinuation(ctx context.Context, op string, c *continuation, advance bool) (err error) {
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.SessionID, c.sessionID))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if advance {
		if err := s.tracker.Advance(ctx); err != nil {
			logger.Warn("Failed to clear overlays", zap.Error(err))
		}
	}

	step.AddEvent("waiting for page to settle")
	if err := s.settle(c.ctx, c.prevURL); err != nil {
		return s.fail(c.ctx, c.epoch, op, err, apperr.StageNavigation)
	}

	return s.round(c.ctx, c.epoch, c.instruction, c.prior)
}

// round is one snapshot -> propose -> reconcile -> render pass.
func (s *GuideService) round(ctx context.Context, epoch uint64, instruction string, prior *entity.PriorProgress) error {
	const op = "round"

	snap, err := s.snapshot.Call(ctx, struct{}{})
	if err != nil {
		return s.fail(ctx, epoch, op, err, apperr.StageSnapshot)
	}

	proposal, err := s.proposeWithRetry(ctx, entity.InstructionRequest{
		InstructionText: instruction,
		URL:             snap.URL,
		ElementSummary:  snap.Summary,
		ViewportContext: snap.Viewport,
		Screenshot:      snap.Screenshot,
		PriorProgress:   prior,
	})
	if err != nil {
		return s.fail(ctx, epoch, op, err, apperr.StageAI)
	}

	return s.apply(ctx, epoch, snap, proposal, prior != nil)
}

func (s *GuideService) proposeWithRetry(ctx context.Context, req entity.InstructionRequest) (*entity.Proposal, error) {
	const op = "proposeWithRetry"
	logger := s.logger.With(zap.String(logg.Operation, op))

	proposal, err := s.propose.Call(ctx, req)
	if err == nil || !apperr.Retryable(err) {
		return proposal, err
	}

	logger.Warn("Instruction source failed, retrying once",
		zap.String(logg.Reason, apperr.CodeOf(err)),
		zap.Duration("backoff", s.cfg.RetryBackoff),
	)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.cfg.RetryBackoff):
	}

	return s.propose.Call(ctx, req)
}

func (s *GuideService) apply(ctx context.Context, epoch uint64, snap *entity.Snapshot, p *entity.Proposal, continuation bool) error {
	const op = "apply"

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || s.session == nil {
		return nil
	}

	sess := s.session
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.SessionID, sess.SessionID.String()))

	sess.PendingContinuation = false
	sess.UpdatedAt = time.Now()
	sess.PrevURL = snap.URL
	if continuation {
		sess.StepIndex++
	}
	sess.LastProposal = p

	switch {
	case p.Kind == entity.GuideKindAnswer:
		s.notifyLocked(ctx, entity.Notice{Kind: entity.NoticeAnswer, Text: p.Explanation, SessionID: sess.SessionID})
		s.idleLocked(ctx, "answered")
		return nil
	case p.Done || len(p.Steps) == 0:
		s.notifyLocked(ctx, entity.Notice{Kind: entity.NoticeComplete, Text: completionText(p), SessionID: sess.SessionID})
		s.idleLocked(ctx, "completed")
		return nil
	}

	current, err := s.browser.Viewport(ctx)
	if err != nil {
		logger.Debug("Using capture viewport", zap.Error(err))
		current = snap.Viewport
	}

	res := s.reconciler.Reconcile(reconciler.Input{Proposal: p, Snapshot: snap, Current: current})
	sess.LastOverlays = res.Overlays
	s.targets = res.TargetIndexes

	s.notifyLocked(ctx, entity.Notice{
		Kind:      entity.NoticeSteps,
		Text:      p.Explanation,
		Steps:     stepTexts(p),
		SessionID: sess.SessionID,
	})

	if len(res.Overlays) > 0 {
		s.transitionLocked(entity.SessionStepsVisible)
		if err := s.tracker.Render(ctx, res.Overlays, current, s.handlersFor(epoch)); err != nil {
			logger.Warn("Render failed, steps stay text-only", zap.Error(err))
		}
	} else {
		logger.Info("No step could be placed, showing text only")
	}

	s.transitionLocked(entity.SessionAwaitingContinuation)
	s.touchLocked()

	return nil
}

func (s *GuideService) fail(ctx context.Context, epoch uint64, op string, err error, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := apperr.CodeOf(err)
	switch {
	case code != "":
	case errors.Is(err, context.DeadlineExceeded):
		code = apperr.CodeTimeout
	case errors.Is(err, context.Canceled):
		code = apperr.CodeUnavailable
	default:
		code = apperr.CodeInternal
	}

	wrapped := apperr.Wrap(op, code, err, map[string]any{
		apperr.MetaReason: "guidance_request_failed",
		apperr.MetaStage:  stage,
	})

	if epoch != s.epoch || s.session == nil {
		return wrapped
	}

	s.logger.Warn("Guidance request failed",
		zap.String(logg.Operation, op),
		zap.String(logg.SessionID, s.session.SessionID.String()),
		zap.Error(err),
	)

	s.session.PendingContinuation = false
	s.transitionLocked(entity.SessionAwaitingContinuation)
	s.touchLocked()
	s.notifyLocked(ctx, entity.Notice{
		Kind:      entity.NoticeError,
		Text:      failureText(err),
		SessionID: s.session.SessionID,
	})

	return wrapped
}

// settle polls the URL until two consecutive reads agree or the retries run
// out. Running out is not an error.
func (s *GuideService) settle(ctx context.Context, prev string) error {
	for i := 0; i < s.cfg.SettleRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.SettleInterval):
		}

		url, err := s.browser.CurrentURL(ctx)
		if err != nil {
			continue
		}
		if url == prev {
			return nil
		}
		prev = url
	}

	return nil
}

func (s *GuideService) handlersFor(epoch uint64) tracker.Handlers {
	return tracker.Handlers{
		Completed: func() {
			const op = "StepCompleted"

			s.mu.Lock()
			c, err := s.claimLocked(context.Background(), op, epoch)
			s.mu.Unlock()
			if err != nil {
				s.logger.Debug("Click did not start a continuation", zap.Error(err))
				return
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := s.runContinuation(context.Background(), op, c, false); err != nil {
					s.logger.Debug("Continuation after click failed", zap.Error(err))
				}
			}()
		},
		Dismissed: func(reason tracker.Reason) {
			s.logger.Debug("Overlays dismissed", zap.String(logg.Reason, string(reason)))
		},
	}
}

func (s *GuideService) beginRequestLocked(ctx context.Context) (context.Context, uint64) {
	if s.cancel != nil {
		s.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return reqCtx, s.epoch
}

// idleLocked is the single way into Idle: cancel the request in flight,
// invalidate its epoch, drop the session and dispose the tracker. Safe when
// already idle.
func (s *GuideService) idleLocked(ctx context.Context, reason string) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}

	s.epoch++
	if s.session != nil {
		s.logger.Info("Session ended",
			zap.String(logg.SessionID, s.session.SessionID.String()),
			zap.String(logg.Reason, reason),
		)
	}
	s.session = nil
	s.targets = nil
	s.transitionLocked(entity.SessionIdle)

	if err := s.tracker.Dispose(ctx); err != nil {
		s.logger.Warn("Failed to dispose tracker", zap.Error(err))
	}
}

func (s *GuideService) transitionLocked(to entity.SessionState) {
	if s.state == to {
		return
	}
	s.logger.Debug("Session state",
		zap.String(logg.State, string(to)),
		zap.String("from", string(s.state)),
	)
	s.state = to
}

// touchLocked restarts the inactivity timer.
func (s *GuideService) touchLocked() {
	if s.cfg.IdleTimeout <= 0 || s.session == nil {
		return
	}
	if s.idle != nil {
		s.idle.Stop()
	}

	epoch := s.epoch
	s.idle = time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if epoch != s.epoch || s.state == entity.SessionIdle {
			return
		}
		s.idleLocked(context.Background(), "inactivity")
	})
}

func (s *GuideService) notify(ctx context.Context, n entity.Notice) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

func (s *GuideService) notifyLocked(ctx context.Context, n entity.Notice) {
	s.notify(ctx, n)
}

func stepTexts(p *entity.Proposal) []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.Steps))
	for i, st := range p.Steps {
		out[i] = st.Text
	}
	return out
}

func completionText(p *entity.Proposal) string {
	if p.Explanation != "" {
		return p.Explanation
	}
	return "Guide complete."
}

func failureText(err error) string {
	switch {
	case apperr.IsCode(err, apperr.CodeRateLimited):
		return "The guide service is rate limited. Type 'next' to try again."
	case apperr.IsCode(err, apperr.CodeTimeout):
		return "The guide service did not answer in time. Type 'next' to try again."
	case apperr.IsCode(err, apperr.CodeUnavailable):
		return "The guide service is unavailable. Type 'next' to try again."
	}
	return fmt.Sprintf("Could not get guidance: %v. Type 'next' to try again.", err)
}
