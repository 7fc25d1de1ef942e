package invoicing

import "github.com/stockflow/backend/internal/domain/shared"

var (
	// ErrNotificationNotConfigured is returned when mail transport credentials are missing
	ErrNotificationNotConfigured = shared.NewDomainError("NOTIFICATION_NOT_CONFIGURED", "Notification transport is not configured")

	// ErrStageAlreadyCompleted is returned when a completion write finds the marker already set
	ErrStageAlreadyCompleted = shared.NewDomainError("STAGE_ALREADY_COMPLETED", "Invoice stage was already completed")

	// ErrUnknownStage is returned for a stage outside the pipeline
	ErrUnknownStage = shared.NewDomainError("UNKNOWN_STAGE", "Unknown invoice stage")
)
