// Package bootstrap assembles the invoice automation from configuration. Both the server
// and the one-shot automation command build their pipeline here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	automation "github.com/stockflow/backend/internal/application/invoicing"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/cache"
	"github.com/stockflow/backend/internal/infrastructure/config"
	"github.com/stockflow/backend/internal/infrastructure/notification"
	"github.com/stockflow/backend/internal/infrastructure/persistence"
	"github.com/stockflow/backend/internal/infrastructure/storage"
	"github.com/stockflow/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PolicyFromConfig builds the collection policy from the automation settings
func PolicyFromConfig(cfg *config.AutomationConfig) (invoicing.Policy, error) {
	fee, err := cfg.LateFee()
	if err != nil {
		return invoicing.Policy{}, fmt.Errorf("late fee amount: %w", err)
	}
	loc, err := cfg.LoadLocation()
	if err != nil {
		return invoicing.Policy{}, fmt.Errorf("timezone: %w", err)
	}

	policy := invoicing.Policy{
		ReminderDelay: cfg.ReminderDelay,
		LeaseDuration: cfg.LeaseDuration,
		LateFeeAmount: fee,
		Currency:      cfg.Currency,
		Location:      loc,
	}
	if err := policy.Validate(); err != nil {
		return invoicing.Policy{}, err
	}
	return policy, nil
}

// Automation is a wired automation driver together with the resources it owns
type Automation struct {
	Driver *automation.Driver
	Policy invoicing.Policy

	closers []io.Closer
}

// NewAutomation wires repositories, leases, the audit log, the SMTP gateway factory, the
// run guard, the optional report archive and metrics into a driver. A nil meter disables
// automation metrics.
func NewAutomation(ctx context.Context, cfg *config.Config, db *gorm.DB, meter metric.Meter, logger *zap.Logger) (*Automation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy, err := PolicyFromConfig(&cfg.Automation)
	if err != nil {
		return nil, err
	}
	composer, err := automation.NewComposer(policy)
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	deps := automation.ProcessorDeps{
		Invoices:    persistence.NewGormInvoiceRepository(db, policy.Location),
		Leases:      persistence.NewGormInvoiceStageLeaser(persistence.NewGormLeaseManager(db), policy.Location),
		AuditLog:    persistence.NewGormNotificationLogRepository(db),
		Composer:    composer,
		Policy:      policy,
		Concurrency: cfg.Automation.Concurrency,
		Logger:      logger,
	}

	a := &Automation{Policy: policy}
	opts := []automation.DriverOption{
		automation.WithRunTimeout(cfg.Automation.RunTimeout),
	}

	if cfg.Automation.RunGuardTTL > 0 {
		guard, err := cache.NewRunGuardFactory(cfg.Redis, cache.WithLogger(logger)).CreateGuard()
		if err != nil {
			return nil, err
		}
		if closer, ok := guard.(io.Closer); ok {
			a.closers = append(a.closers, closer)
		}
		opts = append(opts, automation.WithRunGuard(guard, cfg.Automation.RunGuardTTL))
	}

	if cfg.Storage.Enabled {
		store, err := storage.NewS3ReportStore(ctx, &cfg.Storage, storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create report store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn("Report bucket check failed, reports may not be archived",
				zap.String("bucket", store.GetBucket()),
				zap.Error(err),
			)
		}
		opts = append(opts, automation.WithReportStore(store))
	}

	if meter != nil {
		metrics, err := telemetry.NewAutomationMetrics(meter, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create automation metrics: %w", err)
		}
		opts = append(opts, automation.WithMetrics(metrics))
	}

	if !cfg.Mail.IsConfigured() {
		logger.Warn("Mail transport is not configured, automation runs will abort until it is")
	}

	a.Driver = automation.NewDriver(deps, notification.NewGatewayFactory(&cfg.Mail, logger), opts...)
	return a, nil
}

// Close releases the resources owned by the automation
func (a *Automation) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
