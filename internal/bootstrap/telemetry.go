package bootstrap

import (
	"context"
	"errors"

	"github.com/stockflow/backend/internal/infrastructure/config"
	"github.com/stockflow/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Telemetry holds the OpenTelemetry providers of a process
type Telemetry struct {
	meters  *telemetry.MeterProvider
	tracers *telemetry.TracerProvider
}

// NewTelemetry creates the meter and tracer providers. With telemetry disabled both are
// no-ops.
func NewTelemetry(ctx context.Context, cfg *config.TelemetryConfig, logger *zap.Logger) (*Telemetry, error) {
	meters, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ExportInterval:    cfg.ExportInterval,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		return nil, err
	}

	tracers, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		SamplingRatio:     cfg.SamplingRatio,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}

	return &Telemetry{meters: meters, tracers: tracers}, nil
}

// Meter returns a named meter
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.meters.Meter(name)
}

// Enabled reports whether telemetry is exported
func (t *Telemetry) Enabled() bool {
	return t.meters.IsEnabled()
}

// InstrumentDatabase adds per-query spans to db when telemetry.db_tracing is set
func InstrumentDatabase(db *gorm.DB, cfg *config.Config, logger *zap.Logger) error {
	dbSystem := "postgresql"
	if cfg.Database.Driver == "sqlite" {
		dbSystem = "sqlite"
	}
	return telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTracing,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.SlowQueryThresh,
		DBSystem:        dbSystem,
	}, logger).Register(db)
}

// Shutdown flushes and stops both providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracers.Shutdown(ctx), t.meters.Shutdown(ctx))
}
