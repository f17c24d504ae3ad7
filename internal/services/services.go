package services

import (
	"gorm.io/gorm"

	"github.com/vmtorres/payables-api/internal/jobs"
	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/storage"
)

// Services holds all service instances
type Services struct {
	Ledger   *LedgerService
	Closing  *ClosingService
	Schedule *ScheduleService
	Report   *ReportService
	Export   *ExportService
	Audit    *AuditService
	Job      *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, store *storage.LocalStorage, db *gorm.DB) *Services {
	auditSvc := NewAuditService(db)
	exportSvc := NewExportService(repos.Obligation, repos.Event, store)
	ledgerSvc := NewLedgerService(repos.Obligation, repos.Event, repos.Closing, auditSvc, worker)

	return &Services{
		Ledger:   ledgerSvc,
		Closing:  NewClosingService(repos.Obligation, repos.Event, repos.Closing, auditSvc, exportSvc, worker),
		Schedule: NewScheduleService(ledgerSvc),
		Report:   NewReportService(repos.Obligation, repos.Event),
		Export:   exportSvc,
		Audit:    auditSvc,
		Job:      NewJobService(worker),
	}
}
