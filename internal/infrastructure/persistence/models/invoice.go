package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockflow/backend/internal/domain/invoicing"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
//
// InvoiceDate and DueDate are stored as text because rows written by older clients hold
// a mix of date-only strings, RFC3339 timestamps and epoch values. They are normalised
// on read.
type InvoiceModel struct {
	TenantAggregateModel
	InvoiceNumber                string                  `gorm:"type:varchar(50);not null;index"`
	ClientEmail                  string                  `gorm:"type:varchar(255)"`
	ClientName                   string                  `gorm:"type:varchar(200)"`
	Total                        decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	DiscountType                 invoicing.DiscountType  `gorm:"type:varchar(20);not null;default:'none'"`
	DiscountValue                decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	LateFee                      decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	AmountPaid                   decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	OutstandingBalance           decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	Status                       invoicing.InvoiceStatus `gorm:"type:varchar(30);not null;index"`
	InvoiceDate                  string                  `gorm:"type:varchar(40)"`
	DueDate                      string                  `gorm:"type:varchar(40)"`
	SentAt                       *time.Time
	ReminderSentAt               *time.Time
	LateFeeEmailSentAt           *time.Time
	SecondOverdueReminderSentAt  *time.Time
	ReminderProcessingUntil      *time.Time
	OverdueProcessingUntil       *time.Time
	FinalReminderProcessingUntil *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice. Calendar dates are
// interpreted in loc; unparsable dates become nil.
func (m *InvoiceModel) ToDomain(loc *time.Location) *invoicing.Invoice {
	inv := &invoicing.Invoice{
		InvoiceNumber:                m.InvoiceNumber,
		ClientEmail:                  m.ClientEmail,
		ClientName:                   m.ClientName,
		Total:                        m.Total,
		DiscountType:                 m.DiscountType,
		DiscountValue:                m.DiscountValue,
		LateFee:                      m.LateFee,
		AmountPaid:                   m.AmountPaid,
		OutstandingBalance:           m.OutstandingBalance,
		Status:                       m.Status,
		InvoiceDate:                  invoicing.ParseCalendarDate(m.InvoiceDate, loc),
		DueDate:                      invoicing.ParseCalendarDate(m.DueDate, loc),
		SentAt:                       m.SentAt,
		ReminderSentAt:               m.ReminderSentAt,
		LateFeeEmailSentAt:           m.LateFeeEmailSentAt,
		SecondOverdueReminderSentAt:  m.SecondOverdueReminderSentAt,
		ReminderProcessingUntil:      m.ReminderProcessingUntil,
		OverdueProcessingUntil:       m.OverdueProcessingUntil,
		FinalReminderProcessingUntil: m.FinalReminderProcessingUntil,
	}
	m.PopulateTenantAggregateRoot(&inv.TenantAggregateRoot)
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice, loc *time.Location) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.ClientEmail = inv.ClientEmail
	m.ClientName = inv.ClientName
	m.Total = inv.Total
	m.DiscountType = inv.DiscountType
	m.DiscountValue = inv.DiscountValue
	m.LateFee = inv.LateFee
	m.AmountPaid = inv.AmountPaid
	m.OutstandingBalance = inv.OutstandingBalance
	m.Status = inv.Status
	m.InvoiceDate = formatOptionalDate(inv.InvoiceDate, loc)
	m.DueDate = formatOptionalDate(inv.DueDate, loc)
	m.SentAt = inv.SentAt
	m.ReminderSentAt = inv.ReminderSentAt
	m.LateFeeEmailSentAt = inv.LateFeeEmailSentAt
	m.SecondOverdueReminderSentAt = inv.SecondOverdueReminderSentAt
	m.ReminderProcessingUntil = inv.ReminderProcessingUntil
	m.OverdueProcessingUntil = inv.OverdueProcessingUntil
	m.FinalReminderProcessingUntil = inv.FinalReminderProcessingUntil
}

// InvoiceModelFromDomain creates a new persistence model from domain Invoice
func InvoiceModelFromDomain(inv *invoicing.Invoice, loc *time.Location) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv, loc)
	return m
}

func formatOptionalDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return invoicing.FormatCalendarDate(*t, loc)
}
