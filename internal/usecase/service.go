package usecase

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/config"
	"webguide/internal/ports"
	"webguide/internal/reconciler"
	"webguide/internal/tracker"
	"webguide/internal/usecase/adapters"
)

type Service struct {
	Guide   adapters.GuideService
	Browser adapters.BrowserService
}

type Params struct {
	fx.In

	Logger     *zap.Logger
	Config     *config.Config
	Browser    ports.BrowserManager
	Source     ports.InstructionSource
	Notifier   ports.Notifier
	Tracker    *tracker.Tracker
	Reconciler *reconciler.Reconciler
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Guide:   factory.CreateGuideService(),
		Browser: factory.CreateBrowserService(),
	}
}
