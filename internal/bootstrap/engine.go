package bootstrap

import (
	"go.uber.org/zap"

	"webguide/internal/browser"
	"webguide/internal/config"
	"webguide/internal/matcher"
	"webguide/internal/normalizer"
	"webguide/internal/ports"
	"webguide/internal/reconciler"
	"webguide/internal/tracker"
)

func asBrowserManager(m *browser.Manager) ports.BrowserManager { return m }

func asSurface(m *browser.Manager) tracker.Surface { return m }

func newMatcher(cfg *config.Config, logger *zap.Logger) (*matcher.Matcher, error) {
	weights, err := matcher.LoadWeights(cfg.GuideConfig.WeightsFile)
	if err != nil {
		return nil, err
	}

	if cfg.GuideConfig.WeightsFile != "" {
		logger.Info("Matcher weights loaded", zap.String("file", cfg.GuideConfig.WeightsFile))
	}

	return matcher.New(weights), nil
}

func newNormalizer() *normalizer.Normalizer {
	return normalizer.New(normalizer.DefaultParams())
}

func newReconciler(m *matcher.Matcher, n *normalizer.Normalizer, logger *zap.Logger) *reconciler.Reconciler {
	return reconciler.New(reconciler.DefaultParams(), m, n, logger)
}

func newTracker(cfg *config.Config, surface tracker.Surface, logger *zap.Logger) *tracker.Tracker {
	return tracker.New(tracker.Config{
		TickInterval:  cfg.TrackerConfig.TickInterval,
		AutoDismiss:   cfg.TrackerConfig.AutoDismiss,
		AnchorTimeout: cfg.TrackerConfig.AnchorTimeout,
	}, surface, logger)
}
