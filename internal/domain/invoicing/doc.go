// Package invoicing provides the domain model for automated invoice collection.
//
// This package implements the collection bounded context, which is responsible for:
//   - Computing discounts, grand totals and outstanding balances
//   - Deciding whether an invoice is fully paid or overdue
//   - Deciding stage eligibility for the reminder, late fee and final notice stages
//
// Key Aggregates:
//   - Invoice: Client invoice with its stage markers and stage leases
//
// Value Objects:
//   - Stage: Pipeline step, also used as the audit notification type
//   - Policy: Reminder delay, lease duration and late fee constants
//   - NotificationLog: Immutable audit record of a sent notification
//
// Each stage runs at most once per invoice. The stage marker (for example
// ReminderSentAt) is permanent; the stage lease (for example ReminderProcessingUntil)
// is a temporary claim that expires on its own if a run dies mid-stage.
package invoicing
