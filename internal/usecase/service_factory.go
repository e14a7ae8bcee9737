package usecase

import (
	"webguide/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateGuideService() adapters.GuideService {
	return NewGuideService(GuideServiceParams{
		Config:     f.deps.Config,
		Logger:     f.deps.Logger,
		Browser:    f.deps.Browser,
		Source:     f.deps.Source,
		Notifier:   f.deps.Notifier,
		Tracker:    f.deps.Tracker,
		Reconciler: f.deps.Reconciler,
	})
}

func (f *serviceFactory) CreateBrowserService() adapters.BrowserService {
	return f.deps.Browser
}
