package invoicing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ProcessorDeps holds what every stage processor needs
type ProcessorDeps struct {
	Invoices invoicing.InvoiceRepository
	Leases   invoicing.StageLeaser
	AuditLog invoicing.NotificationLogRepository
	Composer *Composer
	Policy   invoicing.Policy

	// Concurrency bounds how many invoices of one stage are processed at once.
	// Values below 2 process sequentially.
	Concurrency int

	Logger *zap.Logger
	Clock  func() time.Time
}

// stageRun carries the per-run values shared by all stages
type stageRun struct {
	id      uuid.UUID
	gateway invoicing.NotificationGateway
}

// StageProcessor advances eligible invoices through one stage:
// lease, re-check, notify, audit and complete.
type StageProcessor struct {
	stage       invoicing.Stage
	invoices    invoicing.InvoiceRepository
	leases      invoicing.StageLeaser
	auditLog    invoicing.NotificationLogRepository
	composer    *Composer
	policy      invoicing.Policy
	concurrency int
	logger      *zap.Logger
	clock       func() time.Time
}

// NewReminderProcessor creates the processor that sends the first payment reminder
func NewReminderProcessor(deps ProcessorDeps) *StageProcessor {
	return newStageProcessor(invoicing.StageReminder, deps)
}

// NewLateFeeProcessor creates the processor that applies the late fee and sends the
// overdue notice
func NewLateFeeProcessor(deps ProcessorDeps) *StageProcessor {
	return newStageProcessor(invoicing.StageLateFee, deps)
}

// NewFinalNoticeProcessor creates the processor that sends the final notice
func NewFinalNoticeProcessor(deps ProcessorDeps) *StageProcessor {
	return newStageProcessor(invoicing.StageFinalNotice, deps)
}

func newStageProcessor(stage invoicing.Stage, deps ProcessorDeps) *StageProcessor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &StageProcessor{
		stage:       stage,
		invoices:    deps.Invoices,
		leases:      deps.Leases,
		auditLog:    deps.AuditLog,
		composer:    deps.Composer,
		policy:      deps.Policy,
		concurrency: concurrency,
		logger:      logger.With(zap.String("stage", string(stage))),
		clock:       clock,
	}
}

// Stage returns the stage this processor handles
func (p *StageProcessor) Stage() invoicing.Stage {
	return p.stage
}

// Process runs the stage over candidates and returns one outcome per candidate, in
// candidate order. Ineligible candidates are skipped with their reason and also counted
// in the summary. Processing stops early when ctx is done.
func (p *StageProcessor) Process(ctx context.Context, run stageRun, candidates []invoicing.Invoice) (StageSummary, []Outcome) {
	summary := StageSummary{
		Stage:      p.stage,
		Candidates: len(candidates),
		Ineligible: map[invoicing.IneligibleReason]int{},
	}

	now := p.clock()
	results := make([]*Outcome, len(candidates))
	eligible := make([]int, 0, len(candidates))
	for i := range candidates {
		inv := &candidates[i]
		if reason := invoicing.CheckEligibility(p.stage, inv, now, p.policy); reason != invoicing.ReasonEligible {
			summary.Ineligible[reason]++
			outcome := p.skipIneligible(inv, reason)
			results[i] = &outcome
			continue
		}
		eligible = append(eligible, i)
	}

	p.logger.Debug("Stage candidates selected",
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(eligible)),
	)

	if p.concurrency == 1 {
		for _, i := range eligible {
			if ctx.Err() != nil {
				break
			}
			outcome := p.processInvoice(ctx, run, &candidates[i])
			results[i] = &outcome
		}
		return summary, collectOutcomes(results)
	}

	// bounded pool; results keep candidate order
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, i := range eligible {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := p.processInvoice(ctx, run, &candidates[i])
			results[i] = &outcome
		}(i)
	}
	wg.Wait()

	return summary, collectOutcomes(results)
}

func (p *StageProcessor) skipIneligible(inv *invoicing.Invoice, reason invoicing.IneligibleReason) Outcome {
	p.logger.Debug("Invoice not eligible for stage",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("tenant_id", inv.TenantID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("reason", string(reason)),
	)
	return Outcome{
		InvoiceID:     inv.ID,
		TenantID:      inv.TenantID,
		InvoiceNumber: inv.InvoiceNumber,
		Stage:         p.stage,
		Status:        OutcomeSkipped,
		Reason:        string(reason),
	}
}

func collectOutcomes(results []*Outcome) []Outcome {
	outcomes := make([]Outcome, 0, len(results))
	for _, o := range results {
		if o != nil {
			outcomes = append(outcomes, *o)
		}
	}
	return outcomes
}

// processInvoice runs the stage on one eligible candidate inside its own span
func (p *StageProcessor) processInvoice(ctx context.Context, run stageRun, candidate *invoicing.Invoice) Outcome {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice_automation", "process_invoice",
		telemetry.SpanAttrRunID, run.id.String(),
		telemetry.SpanAttrStage, string(p.stage),
		telemetry.SpanAttrInvoiceID, candidate.ID.String(),
		telemetry.SpanAttrTenantID, candidate.TenantID.String(),
		telemetry.SpanAttrInvoiceNumber, candidate.InvoiceNumber,
	)
	defer span.End()

	outcome := p.runStage(ctx, run, candidate)
	telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, string(outcome.Status))
	if outcome.Reason != "" {
		telemetry.SetAttributes(span, telemetry.SpanAttrReason, outcome.Reason)
	}
	if outcome.Status == OutcomeFailed {
		telemetry.RecordError(span, errors.New(outcome.Error))
	}
	return outcome
}

func (p *StageProcessor) runStage(ctx context.Context, run stageRun, candidate *invoicing.Invoice) Outcome {
	outcome := Outcome{
		InvoiceID:     candidate.ID,
		TenantID:      candidate.TenantID,
		InvoiceNumber: candidate.InvoiceNumber,
		Stage:         p.stage,
	}
	logger := p.logger.With(
		zap.String("invoice_id", candidate.ID.String()),
		zap.String("tenant_id", candidate.TenantID.String()),
		zap.String("invoice_number", candidate.InvoiceNumber),
	)

	inv, acquired, err := p.leases.TryAcquire(ctx, candidate.ID, p.stage, p.policy.LeaseDuration)
	if err != nil {
		logger.Error("Failed to acquire stage lease", zap.Error(err))
		return failed(outcome, err)
	}
	if !acquired {
		logger.Debug("Stage lease unavailable")
		outcome.Status = OutcomeSkipped
		outcome.Reason = ReasonLeaseUnavailable
		return outcome
	}

	// the candidate was read before the lease; payments may have landed since
	now := p.clock()
	if reason := invoicing.CheckEligibility(p.stage, inv, now, p.policy); reason != invoicing.ReasonEligible {
		logger.Info("Invoice no longer eligible under lease", zap.String("reason", string(reason)))
		p.release(ctx, logger, inv.ID)
		outcome.Status = OutcomeSkipped
		outcome.Reason = string(reason)
		return outcome
	}

	completion := invoicing.StageCompletion{Stage: p.stage, CompletedAt: now}
	target := inv
	if p.stage == invoicing.StageLateFee {
		assessment := invoicing.AssessLateFee(inv, now, p.policy)
		completion.LateFee = &assessment
		updated := *inv
		assessment.Apply(&updated)
		target = &updated
	}

	msg, err := p.composer.Compose(p.stage, target)
	if err != nil {
		logger.Error("Failed to compose notification", zap.Error(err))
		p.release(ctx, logger, inv.ID)
		return failed(outcome, err)
	}

	if err := run.gateway.Send(ctx, msg); err != nil {
		logger.Error("Failed to send notification", zap.String("recipient", msg.To), zap.Error(err))
		p.release(ctx, logger, inv.ID)
		return failed(outcome, err)
	}

	entry := invoicing.NewNotificationLog(target, p.stage, msg, run.id, run.gateway.Sender(), now)
	if err := p.auditLog.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("Failed to write notification log", zap.Error(err))
	}

	if err := p.invoices.CompleteStage(context.WithoutCancel(ctx), inv.ID, completion); err != nil {
		logger.Error("Failed to complete stage after sending", zap.Error(err))
		p.release(ctx, logger, inv.ID)
		return failed(outcome, err)
	}

	logger.Info("Stage completed", zap.String("recipient", msg.To))
	outcome.Status = OutcomeSent
	return outcome
}

func (p *StageProcessor) release(ctx context.Context, logger *zap.Logger, id uuid.UUID) {
	if err := p.leases.Release(context.WithoutCancel(ctx), id, p.stage); err != nil {
		logger.Error("Failed to release stage lease", zap.Error(err))
	}
}

func failed(outcome Outcome, err error) Outcome {
	outcome.Status = OutcomeFailed
	outcome.Error = err.Error()
	return outcome
}
