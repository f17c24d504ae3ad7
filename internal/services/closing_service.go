package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vmtorres/payables-api/internal/jobs"
	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/statemachine"
	"github.com/vmtorres/payables-api/pkg/logger"
)

// ClosingArchiver persists a report artifact for a closed date.
type ClosingArchiver interface {
	ArchiveClosing(ctx context.Context, closing *models.DayClosing) (string, error)
}

// ClosingService owns the period-closing lock protocol: dates close in
// chronological order, reopen in reverse order, and a closed date
// freezes every obligation whose events fall on or before it.
type ClosingService struct {
	obligationRepo repository.ObligationRepository
	eventRepo      repository.EventRepository
	closingRepo    repository.ClosingRepository
	auditSvc       *AuditService
	archiver       ClosingArchiver
	worker         *jobs.Worker
}

// NewClosingService creates a new closing service
func NewClosingService(
	obligationRepo repository.ObligationRepository,
	eventRepo repository.EventRepository,
	closingRepo repository.ClosingRepository,
	auditSvc *AuditService,
	archiver ClosingArchiver,
	worker *jobs.Worker,
) *ClosingService {
	return &ClosingService{
		obligationRepo: obligationRepo,
		eventRepo:      eventRepo,
		closingRepo:    closingRepo,
		auditSvc:       auditSvc,
		archiver:       archiver,
		worker:         worker,
	}
}

// CanWrite reports whether events dated on the given day may still be
// appended, i.e. the date lies strictly after the closing frontier.
func (s *ClosingService) CanWrite(ctx context.Context, date time.Time) (bool, error) {
	latest, err := s.closingRepo.LatestClosedDate(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	return models.DateOnly(date).After(*latest), nil
}

// List returns recent closings, newest date first
func (s *ClosingService) List(ctx context.Context, limit int) ([]models.DayClosing, error) {
	return s.closingRepo.List(ctx, limit)
}

// FindByDate returns the closing row for a date
func (s *ClosingService) FindByDate(ctx context.Context, date time.Time) (*models.DayClosing, error) {
	closing, err := s.closingRepo.FindByDate(ctx, date)
	if errors.Is(err, repository.ErrClosingNotFound) {
		return nil, ErrClosingNotFound
	}
	return closing, err
}

// Close locks a date. Every earlier date that carries ledger activity
// must already be closed, and the date itself cannot lie in the future.
// A balance snapshot is captured at the moment of closing.
func (s *ClosingService) Close(ctx context.Context, date time.Time, actor, ip, userAgent string) (*models.DayClosing, error) {
	day := models.DateOnly(date)
	today := models.DateOnly(time.Now())
	if day.After(today) {
		return nil, ErrInvalidState
	}

	if open, err := s.eventRepo.OpenActivityDateBefore(ctx, day); err != nil {
		return nil, err
	} else if open != nil {
		return nil, fmt.Errorf("%w: %s", ErrPriorDatesOpen, open.Format("2006-01-02"))
	}

	snapshot, err := s.buildSnapshot(ctx, day)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	closing, err := s.closingRepo.FindByDate(ctx, day)
	switch {
	case errors.Is(err, repository.ErrClosingNotFound):
		closing = &models.DayClosing{
			Date:   day,
			Status: models.ClosingStatusOpen,
		}
		cfsm := statemachine.NewClosingFSM(closing)
		if err := cfsm.Close(ctx); err != nil {
			return nil, ErrInvalidState
		}
		closing.ClosedAt = &now
		closing.ClosedBy = actor
		closing.Snapshot = string(raw)
		if err := s.closingRepo.Create(ctx, closing); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		cfsm := statemachine.NewClosingFSM(closing)
		if err := cfsm.Close(ctx); err != nil {
			return nil, ErrInvalidState
		}
		closing.ClosedAt = &now
		closing.ClosedBy = actor
		closing.Snapshot = string(raw)
		if err := s.closingRepo.Update(ctx, closing); err != nil {
			if errors.Is(err, repository.ErrStaleClosing) {
				return nil, ErrConflict
			}
			return nil, err
		}
	}

	s.archive(closing)
	s.audit(ctx, actor, "CLOSE", closing,
		fmt.Sprintf("Fechamento do dia %s (%d eventos)", day.Format("2006-01-02"), snapshot.EventCount),
		ip, userAgent)

	return closing, nil
}

// Reopen unlocks a closed date. Only the most recent closed date may be
// reopened: any later date still closed blocks the operation.
func (s *ClosingService) Reopen(ctx context.Context, date time.Time, actor, ip, userAgent string) (*models.DayClosing, error) {
	day := models.DateOnly(date)

	closing, err := s.closingRepo.FindByDate(ctx, day)
	if errors.Is(err, repository.ErrClosingNotFound) {
		return nil, ErrClosingNotFound
	}
	if err != nil {
		return nil, err
	}

	if later, err := s.closingRepo.AnyClosedAfter(ctx, day); err != nil {
		return nil, err
	} else if later {
		return nil, ErrLaterDatesClosed
	}

	cfsm := statemachine.NewClosingFSM(closing)
	if err := cfsm.Reopen(ctx); err != nil {
		return nil, ErrInvalidState
	}
	now := time.Now()
	closing.ReopenedAt = &now
	closing.ReopenedBy = actor
	if err := s.closingRepo.Update(ctx, closing); err != nil {
		if errors.Is(err, repository.ErrStaleClosing) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.audit(ctx, actor, "REOPEN", closing,
		fmt.Sprintf("Reabertura do dia %s", day.Format("2006-01-02")), ip, userAgent)

	return closing, nil
}

// PendingClosure returns the most recent date before today that carries
// ledger activity but has not been closed yet, or nil when the books
// are up to date.
func (s *ClosingService) PendingClosure(ctx context.Context) (*time.Time, error) {
	today := models.DateOnly(time.Now())
	last, err := s.eventRepo.LastActivityDateBefore(ctx, today)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}

	closing, err := s.closingRepo.FindByDate(ctx, *last)
	if errors.Is(err, repository.ErrClosingNotFound) {
		return last, nil
	}
	if err != nil {
		return nil, err
	}
	if closing.IsClosed() {
		return nil, nil
	}
	return last, nil
}

// buildSnapshot captures the day's movement totals and the open
// portfolio position at closing time. Reversals subtract from the kind
// they compensate.
func (s *ClosingService) buildSnapshot(ctx context.Context, day time.Time) (*models.ClosingSnapshot, error) {
	events, err := s.eventRepo.FindByEffectiveDate(ctx, day)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.LedgerEvent, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	var paid, interest, penalty, discount decimal.Decimal
	apply := func(kind string, amount decimal.Decimal) {
		switch kind {
		case models.EventKindPayment:
			paid = paid.Add(amount)
		case models.EventKindInterestAdjustment:
			interest = interest.Add(amount)
		case models.EventKindPenaltyAdjustment:
			penalty = penalty.Add(amount)
		case models.EventKindDiscountAdjustment:
			discount = discount.Add(amount)
		}
	}
	for i := range events {
		e := &events[i]
		if e.Kind == models.EventKindReversal {
			if e.ReversesEventID != nil {
				if original, ok := byID[*e.ReversesEventID]; ok {
					apply(original.Kind, e.Amount.Neg())
				}
			}
			continue
		}
		apply(e.Kind, e.Amount)
	}

	open, err := s.obligationRepo.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	var outstanding decimal.Decimal
	for i := range open {
		proj, err := Project(&open[i])
		if err != nil {
			return nil, err
		}
		outstanding = outstanding.Add(proj.Outstanding)
	}

	return &models.ClosingSnapshot{
		Date:             day.Format("2006-01-02"),
		EventCount:       len(events),
		PaidTotal:        paid.StringFixed(2),
		InterestPaid:     interest.StringFixed(2),
		PenaltyPaid:      penalty.StringFixed(2),
		DiscountApplied:  discount.StringFixed(2),
		OutstandingTotal: outstanding.StringFixed(2),
		OpenObligations:  len(open),
	}, nil
}

func (s *ClosingService) archive(closing *models.DayClosing) {
	if s.archiver == nil || s.worker == nil {
		return
	}
	day := closing.Date
	snapshot := *closing
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		path, err := s.archiver.ArchiveClosing(ctx, &snapshot)
		if err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("[Closing] Relatório do dia %s arquivado em %s", day.Format("2006-01-02"), path))
		return nil
	})
}

func (s *ClosingService) audit(ctx context.Context, actor, action string, closing *models.DayClosing, details, ip, userAgent string) {
	if s.auditSvc == nil {
		return
	}
	entityID := fmt.Sprintf("%d", closing.ID)
	if s.worker != nil {
		s.worker.EnqueueAsync(func(ctx context.Context) error {
			return s.auditSvc.Log(ctx, actor, action, "DayClosing", entityID, details, ip, userAgent)
		})
		return
	}
	s.auditSvc.Log(ctx, actor, action, "DayClosing", entityID, details, ip, userAgent)
}
