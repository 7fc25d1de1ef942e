package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// AutomationMetrics records invoice automation counters
type AutomationMetrics struct {
	logger *zap.Logger

	outcomesTotal *Counter
	runsTotal     *Counter
	runDuration   *Histogram
}

// NewAutomationMetrics creates the automation instruments on meter
func NewAutomationMetrics(meter metric.Meter, logger *zap.Logger) (*AutomationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	outcomes, err := NewCounter(meter,
		"invoice_automation_outcomes_total",
		"Invoice stage attempts by stage and outcome",
		"{attempt}",
	)
	if err != nil {
		return nil, err
	}

	runs, err := NewCounter(meter,
		"invoice_automation_runs_total",
		"Automation runs by result",
		"{run}",
	)
	if err != nil {
		return nil, err
	}

	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "invoice_automation_run_duration_seconds",
		Description: "Duration of automation runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &AutomationMetrics{
		logger:        logger,
		outcomesTotal: outcomes,
		runsTotal:     runs,
		runDuration:   duration,
	}, nil
}

// RecordOutcome counts one attempted invoice stage
func (m *AutomationMetrics) RecordOutcome(ctx context.Context, tenantID, stage, status string) {
	m.outcomesTotal.Inc(ctx,
		AttrTenantID.String(tenantID),
		AttrStage.String(stage),
		AttrOutcome.String(status),
	)
}

// RecordRun counts a finished run and its duration
func (m *AutomationMetrics) RecordRun(ctx context.Context, duration time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	m.runsTotal.Inc(ctx, AttrResult.String(result))
	m.runDuration.RecordDuration(ctx, duration, AttrResult.String(result))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewAutomationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
