package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vmtorres/payables-api/internal/models"

	"gorm.io/gorm"
)

// TxGuard is re-validated inside the append transaction, immediately
// before commit. The ledger service uses it to re-check the closing
// frontier so a write that observed an open date cannot commit after a
// concurrent close of that date.
type TxGuard func(tx *gorm.DB) error

// EventRepository defines the interface for ledger event data access.
// Appends are transactional: the event rows and the obligation
// accumulator row commit together or not at all.
type EventRepository interface {
	// AppendOrigination creates the obligation row together with its
	// origination event.
	AppendOrigination(ctx context.Context, obligation *models.Obligation, event *models.LedgerEvent, guard TxGuard) error
	// Append inserts events for an existing obligation and writes the
	// updated accumulators, guarded by the obligation's lock_version.
	Append(ctx context.Context, obligation *models.Obligation, events []models.LedgerEvent, guard TxGuard) error
	FindByID(ctx context.Context, id string) (*models.LedgerEvent, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEvent, error)
	FindByObligationID(ctx context.Context, obligationID string) ([]models.LedgerEvent, error)
	FindChildren(ctx context.Context, parentID string) ([]models.LedgerEvent, error)
	// FindReversalOf returns the reversal event compensating the given
	// event, or nil when it has not been reversed.
	FindReversalOf(ctx context.Context, eventID string) (*models.LedgerEvent, error)
	FindByEffectiveDate(ctx context.Context, date time.Time) ([]models.LedgerEvent, error)
	// OpenActivityDateBefore returns the earliest date strictly before the
	// given one that has ledger activity and no closed day_closings row.
	OpenActivityDateBefore(ctx context.Context, date time.Time) (*time.Time, error)
	// LastActivityDateBefore returns the most recent date strictly before
	// the given one with any ledger activity.
	LastActivityDateBefore(ctx context.Context, date time.Time) (*time.Time, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new ledger event repository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) AppendOrigination(ctx context.Context, obligation *models.Obligation, event *models.LedgerEvent, guard TxGuard) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if guard != nil {
			if err := guard(tx); err != nil {
				return err
			}
		}
		if err := tx.Create(obligation).Error; err != nil {
			return translateDuplicate(err)
		}
		if err := tx.Create(event).Error; err != nil {
			return translateDuplicate(err)
		}
		return nil
	})
}

func (r *eventRepository) Append(ctx context.Context, obligation *models.Obligation, events []models.LedgerEvent, guard TxGuard) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The obligation row is the origination record; without it no
		// event may reference the obligation.
		var count int64
		if err := tx.Model(&models.Obligation{}).Where("id = ?", obligation.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrObligationNotFound
		}

		if guard != nil {
			if err := guard(tx); err != nil {
				return err
			}
		}

		for i := range events {
			if err := tx.Create(&events[i]).Error; err != nil {
				return translateDuplicate(err)
			}
		}

		// Optimistic per-obligation serialization: the accumulator write
		// only lands if nobody else committed since we loaded the row.
		res := tx.Model(&models.Obligation{}).
			Where("id = ? AND lock_version = ?", obligation.ID, obligation.LockVersion).
			Updates(map[string]interface{}{
				"paid_total":       obligation.PaidTotal,
				"interest_paid":    obligation.InterestPaid,
				"penalty_paid":     obligation.PenaltyPaid,
				"discount_applied": obligation.DiscountApplied,
				"status":           obligation.Status,
				"lock_version":     obligation.LockVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleObligation
		}
		obligation.LockVersion++
		return nil
	})
}

func (r *eventRepository) FindByID(ctx context.Context, id string) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	err := r.db.WithContext(ctx).First(&event, "idempotency_key = ?", key).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByObligationID retrieves all events for an obligation in creation
// order. Ids are time-ordered, so ordering by id reconstructs the fold
// order without a separate sequence column.
func (r *eventRepository) FindByObligationID(ctx context.Context, obligationID string) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("obligation_id = ?", obligationID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) FindChildren(ctx context.Context, parentID string) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("parent_event_id = ?", parentID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) FindReversalOf(ctx context.Context, eventID string) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	err := r.db.WithContext(ctx).
		First(&event, "kind = ? AND reverses_event_id = ?", models.EventKindReversal, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) FindByEffectiveDate(ctx context.Context, date time.Time) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("effective_date = ?", models.DateOnly(date)).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) OpenActivityDateBefore(ctx context.Context, date time.Time) (*time.Time, error) {
	var row struct {
		EffectiveDate time.Time
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Select("effective_date").
		Where("effective_date < ?", models.DateOnly(date)).
		Where("effective_date NOT IN (?)", r.db.Model(&models.DayClosing{}).
			Select("date").
			Where("status = ?", models.ClosingStatusClosed)).
		Order("effective_date ASC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.EffectiveDate.IsZero() {
		return nil, nil
	}
	d := models.DateOnly(row.EffectiveDate)
	return &d, nil
}

func (r *eventRepository) LastActivityDateBefore(ctx context.Context, date time.Time) (*time.Time, error) {
	var row struct {
		EffectiveDate time.Time
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Select("effective_date").
		Where("effective_date < ?", models.DateOnly(date)).
		Order("effective_date DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.EffectiveDate.IsZero() {
		return nil, nil
	}
	d := models.DateOnly(row.EffectiveDate)
	return &d, nil
}

// translateDuplicate maps unique-constraint violations (the idempotency
// key index) to ErrDuplicateEvent.
func translateDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEvent
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key") {
		return ErrDuplicateEvent
	}
	return err
}
