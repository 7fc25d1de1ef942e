package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	automation "github.com/stockflow/backend/internal/application/invoicing"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/logger"
	"github.com/stockflow/backend/internal/infrastructure/scheduler"
	"github.com/stockflow/backend/internal/interfaces/http/dto"
	"github.com/stockflow/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// AutomationTrigger starts automation runs and remembers the last one
type AutomationTrigger interface {
	TriggerNow(ctx context.Context) (*automation.RunReport, error)
	LastRun() (*automation.RunReport, error)
}

// AutomationHandler exposes the invoice automation over HTTP
type AutomationHandler struct {
	BaseHandler
	trigger AutomationTrigger
}

// NewAutomationHandler creates a new AutomationHandler
func NewAutomationHandler(trigger AutomationTrigger) *AutomationHandler {
	return &AutomationHandler{trigger: trigger}
}

// TriggerRun runs the automation synchronously and returns the run report.
// Per-invoice outcomes are included with ?outcomes=true. The run ignores
// cancellation of the request.
func (h *AutomationHandler) TriggerRun(c *gin.Context) {
	withOutcomes, _ := strconv.ParseBool(c.Query("outcomes"))
	log := logger.L(c.Request.Context())

	log.Info("Automation run requested", zap.String("subject", middleware.GetTriggerSubject(c)))

	report, err := h.trigger.TriggerNow(context.WithoutCancel(c.Request.Context()))
	resp := dto.NewRunReportResponse(report, withOutcomes)

	switch {
	case err == nil:
		h.Success(c, resp)
	case errors.Is(err, scheduler.ErrRunInProgress):
		h.ErrorWithCode(c, dto.ErrCodeRunInProgress, "An automation run is already in progress")
	case errors.Is(err, invoicing.ErrNotificationNotConfigured):
		h.ErrorWithData(c, dto.ErrCodeNotConfigured, "Notification transport is not configured", resp)
	default:
		log.Error("Automation run failed", zap.Error(err))
		h.ErrorWithData(c, dto.ErrCodeRunFailed, "Automation run failed", resp)
	}
}

// GetLastRun returns the report of the most recent run in this process
func (h *AutomationHandler) GetLastRun(c *gin.Context) {
	withOutcomes, _ := strconv.ParseBool(c.Query("outcomes"))

	report, err := h.trigger.LastRun()
	if report == nil {
		h.ErrorWithCode(c, dto.ErrCodeNotFound, "No automation run has finished yet")
		return
	}

	resp := dto.NewRunReportResponse(report, withOutcomes)
	if err != nil {
		h.ErrorWithData(c, dto.ErrCodeRunFailed, err.Error(), resp)
		return
	}
	h.Success(c, resp)
}
