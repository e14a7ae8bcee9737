package bootstrap

import (
	"time"

	"go.uber.org/fx"

	"webguide/internal/ai"
	"webguide/internal/browser"
	"webguide/internal/config"
	"webguide/internal/console"
	"webguide/internal/ports"
	"webguide/internal/usecase"
)

func NewApp() *fx.App {
	return fx.New(
		fx.Provide(
			config.GetConfig,
			newLogger,

			browser.NewManager,
			asBrowserManager,
			asSurface,
			ai.NewInstructionSource,
			fx.Annotate(console.NewPrinter, fx.As(new(ports.Notifier))),

			newMatcher,
			newNormalizer,
			newReconciler,
			newTracker,

			usecase.NewUsecase,

			console.NewInterface,
		),

		fx.Invoke(
			setupTracing,
			runConsole,
			runEventPump,
		),

		fx.StartTimeout(2*time.Minute),
	)
}
