// Package invoicing runs the unattended invoice collection pipeline.
//
// A Driver run loads every outstanding invoice of every tenant and passes it through
// three stage processors in order: first reminder, late fee with overdue notice, and
// final notice. Each stage is guarded by a per-invoice lease so overlapping or crashed
// runs never complete a stage twice; an interrupted stage is retried by a later run once
// its lease expires.
package invoicing
