package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/domain/shared"
	"github.com/stockflow/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// stage column names on the invoices table
type stageColumns struct {
	marker string
	lease  string
}

var invoiceStageColumns = map[invoicing.Stage]stageColumns{
	invoicing.StageReminder:    {marker: "reminder_sent_at", lease: "reminder_processing_until"},
	invoicing.StageLateFee:     {marker: "late_fee_email_sent_at", lease: "overdue_processing_until"},
	invoicing.StageFinalNotice: {marker: "second_overdue_reminder_sent_at", lease: "final_reminder_processing_until"},
}

func columnsFor(stage invoicing.Stage) (stageColumns, error) {
	cols, ok := invoiceStageColumns[stage]
	if !ok {
		return stageColumns{}, fmt.Errorf("%w: %s", invoicing.ErrUnknownStage, stage)
	}
	return cols, nil
}

// GormInvoiceRepository implements invoicing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db  *gorm.DB
	loc *time.Location
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository. Stored calendar dates
// are read and written in loc.
func NewGormInvoiceRepository(db *gorm.DB, loc *time.Location) *GormInvoiceRepository {
	if loc == nil {
		loc = time.Local
	}
	return &GormInvoiceRepository{db: db, loc: loc}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(r.loc), nil
}

// FindByStatuses finds invoices of all tenants in any of the given statuses
func (r *GormInvoiceRepository) FindByStatuses(ctx context.Context, statuses []invoicing.InvoiceStatus) ([]invoicing.Invoice, error) {
	if len(statuses) == 0 {
		return []invoicing.Invoice{}, nil
	}

	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]invoicing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain(r.loc)
	}
	return invoices, nil
}

// FindByTenant finds all invoices of one tenant, newest first
func (r *GormInvoiceRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]invoicing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]invoicing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain(r.loc)
	}
	return invoices, nil
}

// Save creates or fully updates an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoicing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv, r.loc)
	return r.db.WithContext(ctx).Save(model).Error
}

// CompleteStage writes the stage marker, clears the stage lease and applies the stage's
// field changes. The marker IS NULL guard makes the transition happen at most once.
func (r *GormInvoiceRepository) CompleteStage(ctx context.Context, id uuid.UUID, completion invoicing.StageCompletion) error {
	cols, err := columnsFor(completion.Stage)
	if err != nil {
		return err
	}

	updates := map[string]any{
		cols.marker:  completion.CompletedAt,
		cols.lease:   nil,
		"version":    gorm.Expr("version + 1"),
		"updated_at": completion.CompletedAt,
	}
	if completion.Stage == invoicing.StageLateFee {
		if completion.LateFee == nil {
			return fmt.Errorf("%w: late fee stage completed without assessment", shared.ErrInvalidInput)
		}
		updates["late_fee"] = completion.LateFee.LateFee
		updates["invoice_date"] = invoicing.FormatCalendarDate(completion.LateFee.InvoiceDate, r.loc)
		updates["due_date"] = invoicing.FormatCalendarDate(completion.LateFee.DueDate, r.loc)
		updates["outstanding_balance"] = completion.LateFee.OutstandingBalance
	}

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND "+cols.marker+" IS NULL", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return invoicing.ErrStageAlreadyCompleted
	}
	return nil
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)
