package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"webguide/internal/config"
)

// newLogger writes to LOG_FILE so log lines don't interleave with the
// console's own output on stdout.
func newLogger(config *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if config.AppConfig.Debug {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.DisableStacktrace = true

	if config.AppConfig.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(config.AppConfig.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
		}
		zapConfig.Level = level
	}

	if out := config.AppConfig.LogFile; out != "" {
		zapConfig.OutputPaths = []string{out}
		zapConfig.ErrorOutputPaths = []string{out}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", serviceName)), nil
}
