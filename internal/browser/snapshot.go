package browser

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"webguide/internal/entity"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
	"webguide/pkg/tracing"
)

// collected is the collector script's output.
type collected struct {
	URL      string                     `json:"url"`
	Title    string                     `json:"title"`
	Viewport entity.ViewportContext     `json:"viewport"`
	Layout   *entity.LayoutHints        `json:"layout"`
	Elements []entity.ElementDescriptor `json:"elements"`
	Error    string                     `json:"error"`
}

// Snapshot collects the element summary and viewport of the current page
// and, when enabled, a downscaled screenshot taken at the same scroll
// position.
func (m *Manager) Snapshot(ctx context.Context) (snap *entity.Snapshot, err error) {
	const op = "Snapshot"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if page, err := m.activePage(); err == nil {
		_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: playwright.Float(loadStateTimeout),
		})
	}

	result, err := m.evaluate(ctx, op, collectorScript(maxElements))
	if err != nil {
		return nil, err
	}

	snap, err = decodeSnapshot(result)
	if err != nil {
		return nil, err
	}

	step.SetAttributes(
		attribute.Int("elements", snap.Summary.Len()),
		attribute.String("url", snap.URL),
	)

	if m.config.BrowserConfig.UseScreenshots {
		shot, w, h, err := m.screenshot(ctx)
		if err != nil {
			logger.Warn("Snapshot without screenshot", zap.Error(err))
		} else {
			snap.Screenshot = shot
			snap.Viewport.ScreenshotPixelWidth = float64(w)
			snap.Viewport.ScreenshotPixelHeight = float64(h)
		}
	}

	logger.Debug("Snapshot collected",
		zap.String(logg.URL, snap.URL),
		zap.Int("elements", snap.Summary.Len()),
		zap.Float64("scroll_y", snap.Viewport.ScrollY),
	)

	return snap, nil
}

func decodeSnapshot(result any) (*entity.Snapshot, error) {
	const op = "decodeSnapshot"

	var c collected
	if err := decodeJSONResult(op, result, &c); err != nil {
		return nil, err
	}

	if c.Error != "" {
		return nil, apperr.Wrap(op, apperr.CodeInternal, errors.New(c.Error), map[string]any{
			apperr.MetaReason: "collector_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
		})
	}

	elements := make([]entity.ElementDescriptor, 0, len(c.Elements))
	for _, el := range c.Elements {
		if !el.Rect.Finite() {
			continue
		}
		elements = append(elements, el)
	}

	snap := &entity.Snapshot{
		URL:   c.URL,
		Title: c.Title,
		Summary: entity.ElementSummary{
			SnapshotID: uuid.New(),
			Elements:   elements,
		},
		Viewport: c.Viewport,
		TakenAt:  time.Now(),
	}
	if c.Layout != nil {
		snap.Layout = *c.Layout
	}

	return snap, nil
}
