package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormNotificationLogRepository implements invoicing.NotificationLogRepository using GORM.
// Entries are only ever inserted.
type GormNotificationLogRepository struct {
	db *gorm.DB
}

// NewGormNotificationLogRepository creates a new GormNotificationLogRepository
func NewGormNotificationLogRepository(db *gorm.DB) *GormNotificationLogRepository {
	return &GormNotificationLogRepository{db: db}
}

// Append inserts a new audit entry
func (r *GormNotificationLogRepository) Append(ctx context.Context, entry *invoicing.NotificationLog) error {
	model := models.NotificationLogModelFromDomain(entry)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
		entry.ID = model.ID
	}
	model.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByInvoice returns the audit entries of an invoice, oldest first
func (r *GormNotificationLogRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]invoicing.NotificationLog, error) {
	var logModels []models.NotificationLogModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sent_at ASC").
		Find(&logModels).Error; err != nil {
		return nil, err
	}
	entries := make([]invoicing.NotificationLog, len(logModels))
	for i, model := range logModels {
		entries[i] = *model.ToDomain()
	}
	return entries, nil
}

// CountByRun returns how many entries a run wrote
func (r *GormNotificationLogRepository) CountByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NotificationLogModel{}).
		Where("run_id = ?", runID).
		Count(&count).Error
	return count, err
}

// Ensure GormNotificationLogRepository implements NotificationLogRepository
var _ invoicing.NotificationLogRepository = (*GormNotificationLogRepository)(nil)
