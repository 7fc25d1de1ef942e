package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaseSpec names the row columns that hold a lease and the completion marker it guards.
// Column names come from code, never from input.
type LeaseSpec struct {
	Table            string
	LeaseColumn      string
	CompletionColumn string
}

// GormLeaseManager grants time-bounded exclusive ownership of a unit of work stored on a
// row. The lease is a timestamp column; a lease in the past is free. The row must carry a
// version column, which every acquisition bumps.
type GormLeaseManager struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormLeaseManager creates a new GormLeaseManager
func NewGormLeaseManager(db *gorm.DB) *GormLeaseManager {
	return &GormLeaseManager{db: db, now: time.Now}
}

// WithClock returns a copy of the manager that reads the current time from now
func (m *GormLeaseManager) WithClock(now func() time.Time) *GormLeaseManager {
	return &GormLeaseManager{db: m.db, now: now}
}

// TryAcquire takes the lease on row id unless the row is missing, the completion marker
// is set or a lease that has not yet expired is held. On success, when snapshot is not
// nil, the row as read inside the acquiring transaction is loaded into it.
//
// The row is read under SELECT ... FOR UPDATE and written with a version guard, so two
// callers racing for the same row cannot both succeed even on databases without row locks.
func (m *GormLeaseManager) TryAcquire(ctx context.Context, spec LeaseSpec, id uuid.UUID, duration time.Duration, snapshot any) (bool, error) {
	now := m.now()
	acquired := false

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := map[string]any{}
		err := tx.Table(spec.Table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select([]string{spec.LeaseColumn, spec.CompletionColumn, "version"}).
			Where("id = ?", id).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if markerIsSet(row[spec.CompletionColumn]) {
			return nil
		}
		if until, ok := leaseExpiry(row[spec.LeaseColumn]); ok && until.After(now) {
			return nil
		}

		result := tx.Table(spec.Table).
			Where("id = ? AND version = ?", id, row["version"]).
			Updates(map[string]any{
				spec.LeaseColumn: now.Add(duration),
				"version":        gorm.Expr("version + 1"),
				"updated_at":     now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if snapshot != nil {
			if err := tx.Table(spec.Table).Where("id = ?", id).Take(snapshot).Error; err != nil {
				return err
			}
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release clears the lease on row id
func (m *GormLeaseManager) Release(ctx context.Context, spec LeaseSpec, id uuid.UUID) error {
	return m.db.WithContext(ctx).
		Table(spec.Table).
		Where("id = ?", id).
		Updates(map[string]any{
			spec.LeaseColumn: nil,
			"updated_at":     m.now(),
		}).Error
}

// markerIsSet treats any non-empty value as set, including values that do not parse,
// so a corrupt marker never causes a stage to run twice.
func markerIsSet(value any) bool {
	_, ok, err := invoicing.ParseFlexibleTimestamp(value, time.UTC)
	return ok || err != nil
}

// leaseExpiry returns the lease expiry. Unparsable leases count as expired.
func leaseExpiry(value any) (time.Time, bool) {
	t, ok, err := invoicing.ParseFlexibleTimestamp(value, time.UTC)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return t, true
}

// GormInvoiceStageLeaser implements invoicing.StageLeaser on the invoices table
type GormInvoiceStageLeaser struct {
	leases *GormLeaseManager
	loc    *time.Location
}

// NewGormInvoiceStageLeaser creates a new GormInvoiceStageLeaser
func NewGormInvoiceStageLeaser(leases *GormLeaseManager, loc *time.Location) *GormInvoiceStageLeaser {
	if loc == nil {
		loc = time.Local
	}
	return &GormInvoiceStageLeaser{leases: leases, loc: loc}
}

func invoiceLeaseSpec(stage invoicing.Stage) (LeaseSpec, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return LeaseSpec{}, err
	}
	return LeaseSpec{
		Table:            models.InvoiceModel{}.TableName(),
		LeaseColumn:      cols.lease,
		CompletionColumn: cols.marker,
	}, nil
}

// TryAcquire takes the stage lease and returns the invoice as read under the lease
func (l *GormInvoiceStageLeaser) TryAcquire(ctx context.Context, id uuid.UUID, stage invoicing.Stage, duration time.Duration) (*invoicing.Invoice, bool, error) {
	spec, err := invoiceLeaseSpec(stage)
	if err != nil {
		return nil, false, err
	}

	var model models.InvoiceModel
	ok, err := l.leases.TryAcquire(ctx, spec, id, duration, &model)
	if err != nil || !ok {
		return nil, false, err
	}
	return model.ToDomain(l.loc), true, nil
}

// Release clears the stage lease
func (l *GormInvoiceStageLeaser) Release(ctx context.Context, id uuid.UUID, stage invoicing.Stage) error {
	spec, err := invoiceLeaseSpec(stage)
	if err != nil {
		return err
	}
	return l.leases.Release(ctx, spec, id)
}

// Ensure GormInvoiceStageLeaser implements StageLeaser
var _ invoicing.StageLeaser = (*GormInvoiceStageLeaser)(nil)
