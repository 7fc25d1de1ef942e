package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RunGuardKey is the run guard key shared by every process running the automation
const RunGuardKey = "invoice_automation:run"

// Metrics receives automation counters
type Metrics interface {
	RecordOutcome(ctx context.Context, tenantID, stage, status string)
	RecordRun(ctx context.Context, duration time.Duration, failed bool)
}

// ReportStore persists finished run reports
type ReportStore interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// Driver runs the collection pipeline over all outstanding invoices of all tenants
type Driver struct {
	invoices   invoicing.InvoiceRepository
	gateways   invoicing.GatewayFactory
	processors []*StageProcessor
	logger     *zap.Logger
	clock      func() time.Time

	runTimeout time.Duration
	guard      invoicing.RunGuard
	guardTTL   time.Duration
	reports    ReportStore
	metrics    Metrics
}

// DriverOption configures the driver
type DriverOption func(*Driver)

// WithRunTimeout bounds a run; zero means no deadline
func WithRunTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		d.runTimeout = timeout
	}
}

// WithRunGuard makes overlapping runs return early while the guard is held
func WithRunGuard(guard invoicing.RunGuard, ttl time.Duration) DriverOption {
	return func(d *Driver) {
		d.guard = guard
		d.guardTTL = ttl
	}
}

// WithReportStore archives every finished run report
func WithReportStore(store ReportStore) DriverOption {
	return func(d *Driver) {
		d.reports = store
	}
}

// WithMetrics records outcome and run counters
func WithMetrics(metrics Metrics) DriverOption {
	return func(d *Driver) {
		d.metrics = metrics
	}
}

// NewDriver creates a driver running the reminder, late fee and final notice stages in
// that order
func NewDriver(deps ProcessorDeps, gateways invoicing.GatewayFactory, opts ...DriverOption) *Driver {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	logger := deps.Logger.Named("invoice-automation")
	deps.Logger = logger

	d := &Driver{
		invoices: deps.Invoices,
		gateways: gateways,
		processors: []*StageProcessor{
			NewReminderProcessor(deps),
			NewLateFeeProcessor(deps),
			NewFinalNoticeProcessor(deps),
		},
		logger: logger,
		clock:  deps.Clock,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one automation run. Per-invoice failures are reported in the RunReport;
// an error is returned only when the run could not start or could not load invoices.
// ErrNotificationNotConfigured is returned before any invoice is touched.
func (d *Driver) Run(ctx context.Context) (*RunReport, error) {
	report := newRunReport(uuid.New(), d.clock())
	logger := d.logger.With(zap.String("run_id", report.RunID.String()))
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice_automation", "run",
		telemetry.SpanAttrRunID, report.RunID.String())
	defer span.End()

	if d.guard != nil {
		acquired, err := d.guard.TryAcquire(ctx, RunGuardKey, d.guardTTL)
		switch {
		case err != nil:
			logger.Warn("Run guard unavailable, continuing without it", zap.Error(err))
		case !acquired:
			logger.Info("Another automation run is in progress")
			report.GuardHeld = true
			telemetry.SetAttributes(span, "guard_held", true)
			report.FinishedAt = d.clock()
			return report, nil
		default:
			defer func() {
				if err := d.guard.Release(context.WithoutCancel(ctx), RunGuardKey); err != nil {
					logger.Warn("Failed to release run guard", zap.Error(err))
				}
			}()
		}
	}

	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}

	gateway, err := d.gateways(ctx)
	if err != nil {
		if errors.Is(err, invoicing.ErrNotificationNotConfigured) {
			logger.Error("Notification transport not configured, skipping run")
		} else {
			logger.Error("Failed to create notification gateway", zap.Error(err))
		}
		return d.finish(ctx, logger, report, err)
	}

	logger.Info("Automation run started")
	run := stageRun{id: report.RunID, gateway: gateway}

	for _, p := range d.processors {
		if ctx.Err() != nil {
			report.Interrupted = true
			logger.Warn("Run deadline reached, remaining stages deferred to next run",
				zap.String("next_stage", string(p.Stage())))
			break
		}

		if err := d.runStage(ctx, logger, run, p, report); err != nil {
			return d.finish(ctx, logger, report, err)
		}
	}
	if ctx.Err() != nil {
		report.Interrupted = true
	}

	return d.finish(ctx, logger, report, nil)
}

// runStage processes one stage inside its own span
func (d *Driver) runStage(ctx context.Context, logger *zap.Logger, run stageRun, p *StageProcessor, report *RunReport) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice_automation", "stage",
		telemetry.SpanAttrRunID, run.id.String(),
		telemetry.SpanAttrStage, string(p.Stage()))
	defer span.End()

	// re-query so each stage sees the previous stage's writes
	candidates, err := d.loadCandidates(ctx)
	if err != nil {
		logger.Error("Failed to load candidate invoices",
			zap.String("stage", string(p.Stage())), zap.Error(err))
		err = fmt.Errorf("load candidates for %s: %w", p.Stage(), err)
		telemetry.RecordError(span, err)
		return err
	}

	summary, outcomes := p.Process(ctx, run, candidates)
	report.addStage(summary, outcomes)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCandidates, summary.Candidates,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return nil
}

// loadCandidates returns the outstanding invoices of every tenant, each once
func (d *Driver) loadCandidates(ctx context.Context) ([]invoicing.Invoice, error) {
	invoices, err := d.invoices.FindByStatuses(ctx, invoicing.CollectableStatuses())
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(invoices))
	candidates := make([]invoicing.Invoice, 0, len(invoices))
	for i := range invoices {
		inv := invoices[i]
		if _, dup := seen[inv.ID]; dup {
			continue
		}
		seen[inv.ID] = struct{}{}
		if invoicing.IsFullyPaid(&inv) {
			continue
		}
		candidates = append(candidates, inv)
	}
	return candidates, nil
}

func (d *Driver) finish(ctx context.Context, logger *zap.Logger, report *RunReport, runErr error) (*RunReport, error) {
	report.FinishedAt = d.clock()
	span := trace.SpanFromContext(ctx)
	telemetry.RecordError(span, runErr)
	ctx = context.WithoutCancel(ctx)

	if d.metrics != nil {
		for _, o := range report.Outcomes {
			d.metrics.RecordOutcome(ctx, o.TenantID.String(), string(o.Stage), string(o.Status))
		}
		d.metrics.RecordRun(ctx, report.Duration(), runErr != nil)
	}

	if runErr != nil {
		return report, runErr
	}

	logger.Info("Automation run finished",
		zap.Int("sent", report.Count(OutcomeSent)),
		zap.Int("skipped", report.Count(OutcomeSkipped)),
		zap.Int("failed", report.Count(OutcomeFailed)),
		zap.Bool("interrupted", report.Interrupted),
		zap.Duration("duration", report.Duration()),
	)
	telemetry.SetAttributes(span,
		"sent", report.Count(OutcomeSent),
		"skipped", report.Count(OutcomeSkipped),
		"failed", report.Count(OutcomeFailed),
		"interrupted", report.Interrupted,
	)

	if d.reports != nil {
		if err := d.reports.PutJSON(ctx, ReportKey(report), report); err != nil {
			logger.Warn("Failed to archive run report", zap.Error(err))
		}
	}
	return report, nil
}

// ReportKey returns the object key of an archived run report
func ReportKey(report *RunReport) string {
	return fmt.Sprintf("%s/%s.json", report.StartedAt.UTC().Format("2006/01/02"), report.RunID)
}
