package browser

import (
	"encoding/json"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"webguide/internal/entity"
	"webguide/pkg/logg"
)

type emitted struct {
	Kind    string `json:"kind"`
	Trusted bool   `json:"trusted"`
	URL     string `json:"url"`
	At      int64  `json:"at"`
}

// handleEmit is the __webguideEmit binding. Events from child frames are
// ignored; the runtime only installs itself in the top document.
func (m *Manager) handleEmit(source *playwright.BindingSource, args ...interface{}) interface{} {
	if source != nil && source.Frame != nil && source.Frame.ParentFrame() != nil {
		return nil
	}

	if len(args) == 0 {
		return nil
	}

	raw, ok := args[0].(string)
	if !ok {
		return nil
	}

	ev, ok := parsePageEvent(raw)
	if !ok {
		m.logger.Debug("Dropped malformed page event", zap.String("payload", raw))
		return nil
	}

	m.emit(ev)
	return nil
}

func parsePageEvent(raw string) (entity.PageEvent, bool) {
	var e emitted
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return entity.PageEvent{}, false
	}

	kind := entity.PageEventKind(e.Kind)
	switch kind {
	case entity.PageEventClick, entity.PageEventScroll, entity.PageEventResize,
		entity.PageEventNavigate, entity.PageEventMutation:
	default:
		return entity.PageEvent{}, false
	}

	at := time.Now()
	if e.At > 0 {
		at = time.UnixMilli(e.At)
	}

	return entity.PageEvent{Kind: kind, Trusted: e.Trusted, URL: e.URL, At: at}, true
}

// emit drops geometry events when the buffer is full; the consumer
// re-reads anchors anyway. Clicks and navigations carry session signals, so
// they wait up to criticalWait for room before being dropped.
func (m *Manager) emit(ev entity.PageEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	select {
	case m.events <- ev:
		return
	default:
	}

	if ev.Kind == entity.PageEventClick || ev.Kind == entity.PageEventNavigate {
		timer := time.NewTimer(criticalWait)
		defer timer.Stop()

		select {
		case m.events <- ev:
			return
		case <-timer.C:
			m.logger.Warn("Page event dropped", zap.String(logg.Reason, "buffer_full"), zap.String("kind", string(ev.Kind)))
			return
		}
	}

	m.logger.Debug("Page event dropped", zap.String(logg.Reason, "buffer_full"), zap.String("kind", string(ev.Kind)))
}
