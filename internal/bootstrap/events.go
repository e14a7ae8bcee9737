package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/ports"
	"webguide/internal/usecase"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
)

// runEventPump forwards page events from the browser to the guide session
// until the application stops.
func runEventPump(lc fx.Lifecycle, browser ports.BrowserManager, service *usecase.Service, logger *zap.Logger) {
	logger = logger.With(zap.String(logg.Layer, "EventPump"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				pumpEvents(ctx, browser, service, logger)
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
			case <-stopCtx.Done():
			}

			return nil
		},
	})
}

func pumpEvents(ctx context.Context, browser ports.BrowserManager, service *usecase.Service, logger *zap.Logger) {
	events := browser.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			if err := service.Guide.HandlePageEvent(ctx, ev); err != nil {
				// Events racing a session change are expected.
				if apperr.IsCode(err, apperr.CodeInvalidState) || apperr.IsCode(err, apperr.CodeBusy) {
					logger.Debug("Page event ignored", zap.String("kind", string(ev.Kind)), zap.Error(err))
					continue
				}
				logger.Warn("Failed to handle page event", zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		}
	}
}
