package bootstrap

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"webguide/internal/config"
	"webguide/internal/entity"
	"webguide/internal/ports"
	"webguide/internal/usecase"
	"webguide/internal/usecase/adapters"
	"webguide/pkg/apperr"
)

type pumpBrowser struct {
	ports.BrowserManager
	events chan entity.PageEvent
}

func (b *pumpBrowser) Events() <-chan entity.PageEvent { return b.events }

type pumpGuide struct {
	adapters.GuideService

	mu   sync.Mutex
	seen []entity.PageEventKind
	err  error
}

func (g *pumpGuide) HandlePageEvent(_ context.Context, ev entity.PageEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, ev.Kind)
	return g.err
}

func (g *pumpGuide) kinds() []entity.PageEventKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]entity.PageEventKind(nil), g.seen...)
}

func TestPumpEventsForwardsUntilClosed(t *testing.T) {
	browser := &pumpBrowser{events: make(chan entity.PageEvent, 4)}
	guide := &pumpGuide{err: apperr.WrapErrorWithReason("HandlePageEvent", apperr.CodeBusy, "continuation_in_flight")}

	browser.events <- entity.PageEvent{Kind: entity.PageEventScroll}
	browser.events <- entity.PageEvent{Kind: entity.PageEventClick, Trusted: true}
	close(browser.events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpEvents(context.Background(), browser, &usecase.Service{Guide: guide}, zaptest.NewLogger(t))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop when the channel closed")
	}

	got := guide.kinds()
	if len(got) != 2 || got[0] != entity.PageEventScroll || got[1] != entity.PageEventClick {
		t.Errorf("unexpected events %v", got)
	}
}

func TestPumpEventsStopsOnCancel(t *testing.T) {
	browser := &pumpBrowser{events: make(chan entity.PageEvent)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpEvents(ctx, browser, &usecase.Service{Guide: &pumpGuide{}}, zaptest.NewLogger(t))
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop on cancel")
	}
}

func TestNewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "webguide.log")

	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{"default", "", false},
		{"debug", "debug", false},
		{"warn", "warn", false},
		{"garbage", "loud", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{AppConfig: &config.AppConfig{LogLevel: tt.level, LogFile: logFile}}

			logger, err := newLogger(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error for an unknown level")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			logger.Info("hello")
			_ = logger.Sync()
		})
	}
}

func TestNewMatcherRejectsMissingWeightsFile(t *testing.T) {
	cfg := &config.Config{GuideConfig: &config.GuideConfig{WeightsFile: filepath.Join(t.TempDir(), "missing.yaml")}}

	if _, err := newMatcher(cfg, zaptest.NewLogger(t)); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
