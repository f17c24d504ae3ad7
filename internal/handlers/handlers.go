package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/services"
	"github.com/vmtorres/payables-api/internal/storage"
)

// Handlers holds all handler instances
type Handlers struct {
	Health     *HealthHandler
	Obligation *ObligationHandler
	Closing    *ClosingHandler
	Report     *ReportHandler
	Audit      *AuditHandler
	Job        *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, store *storage.LocalStorage) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(),
		Obligation: NewObligationHandler(svcs.Ledger, svcs.Schedule, svcs.Export),
		Closing:    NewClosingHandler(svcs.Closing),
		Report:     NewReportHandler(svcs.Report, svcs.Export),
		Audit:      NewAuditHandler(svcs.Audit),
		Job:        NewJobHandler(svcs.Job),
	}
}

// respondError maps domain errors onto HTTP statuses. Validation and
// lock-protocol rejections are 422, concurrency is 409, missing
// resources are 404; anything unknown is a 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrObligationNotFound),
		errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrClosingNotFound),
		errors.Is(err, repository.ErrObligationNotFound),
		errors.Is(err, repository.ErrClosingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrDateClosed),
		errors.Is(err, services.ErrPriorDatesOpen),
		errors.Is(err, services.ErrLaterDatesClosed),
		errors.Is(err, services.ErrOverPayment),
		errors.Is(err, services.ErrInvalidSchedule),
		errors.Is(err, services.ErrNegativeAmount),
		errors.Is(err, services.ErrOutstandingBelowZero),
		errors.Is(err, services.ErrInvalidAdjustment),
		errors.Is(err, services.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
