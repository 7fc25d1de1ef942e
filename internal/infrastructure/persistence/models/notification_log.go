package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
)

// NotificationLogModel is the persistence model for audit log entries.
// Rows are insert-only.
type NotificationLogModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	RunID         uuid.UUID       `gorm:"type:uuid;index"`
	Recipient     string          `gorm:"type:varchar(255);not null"`
	Subject       string          `gorm:"type:varchar(255);not null"`
	Type          invoicing.Stage `gorm:"type:varchar(30);not null"`
	InvoiceNumber string          `gorm:"type:varchar(50)"`
	ClientName    string          `gorm:"type:varchar(200)"`
	SentAt        time.Time       `gorm:"not null"`
	SentBy        string          `gorm:"type:varchar(255)"`
	CreatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

// ToDomain converts the persistence model to a domain NotificationLog
func (m *NotificationLogModel) ToDomain() *invoicing.NotificationLog {
	return &invoicing.NotificationLog{
		ID:            m.ID,
		TenantID:      m.TenantID,
		InvoiceID:     m.InvoiceID,
		RunID:         m.RunID,
		Recipient:     m.Recipient,
		Subject:       m.Subject,
		Type:          m.Type,
		InvoiceNumber: m.InvoiceNumber,
		ClientName:    m.ClientName,
		SentAt:        m.SentAt,
		SentBy:        m.SentBy,
	}
}

// NotificationLogModelFromDomain creates a new persistence model from domain NotificationLog
func NotificationLogModelFromDomain(e *invoicing.NotificationLog) *NotificationLogModel {
	return &NotificationLogModel{
		ID:            e.ID,
		TenantID:      e.TenantID,
		InvoiceID:     e.InvoiceID,
		RunID:         e.RunID,
		Recipient:     e.Recipient,
		Subject:       e.Subject,
		Type:          e.Type,
		InvoiceNumber: e.InvoiceNumber,
		ClientName:    e.ClientName,
		SentAt:        e.SentAt,
		SentBy:        e.SentBy,
	}
}
