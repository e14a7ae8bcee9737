package bootstrap

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/config"
)

const serviceName = "webguide"

// setupTracing installs the global tracer provider. Spans are exported only
// when TRACE_FILE is set; otherwise they are recorded and dropped.
func setupTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	var traceFile *os.File
	if path := cfg.AppConfig.TraceFile; path != "" {
		traceFile, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}

		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(traceFile),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			_ = traceFile.Close()
			return err
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("Exporting traces", zap.String("file", path))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if traceFile != nil {
				_ = traceFile.Close()
			}
			return err
		},
	})

	return nil
}
