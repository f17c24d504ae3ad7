package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vmtorres/payables-api/internal/models"

	"gorm.io/gorm"
)

// ClosingRepository defines the interface for day-closing data access
type ClosingRepository interface {
	FindByDate(ctx context.Context, date time.Time) (*models.DayClosing, error)
	List(ctx context.Context, limit int) ([]models.DayClosing, error)
	// LatestClosedDate returns the most recent date currently closed, or
	// nil when no date is closed.
	LatestClosedDate(ctx context.Context) (*time.Time, error)
	// AnyClosedAfter reports whether a date strictly after the given one
	// is currently closed.
	AnyClosedAfter(ctx context.Context, date time.Time) (bool, error)
	Create(ctx context.Context, closing *models.DayClosing) error
	// Update persists a lock-state transition guarded by lock_version.
	Update(ctx context.Context, closing *models.DayClosing) error
}

type closingRepository struct {
	db *gorm.DB
}

// NewClosingRepository creates a new closing repository
func NewClosingRepository(db *gorm.DB) ClosingRepository {
	return &closingRepository{db: db}
}

func (r *closingRepository) FindByDate(ctx context.Context, date time.Time) (*models.DayClosing, error) {
	var closing models.DayClosing
	err := r.db.WithContext(ctx).First(&closing, "date = ?", models.DateOnly(date)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClosingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &closing, nil
}

func (r *closingRepository) List(ctx context.Context, limit int) ([]models.DayClosing, error) {
	var closings []models.DayClosing
	tx := r.db.WithContext(ctx).Order("date DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	err := tx.Find(&closings).Error
	return closings, err
}

func (r *closingRepository) LatestClosedDate(ctx context.Context) (*time.Time, error) {
	return LatestClosedDateTx(r.db.WithContext(ctx))
}

// closingFrontierLockID keys the Postgres advisory lock that
// serializes ledger appends against day-closing writes. Appends hold
// it shared for the span of their transaction; Close/Reopen take it
// exclusive, so neither side can commit between the other's frontier
// check and commit.
const closingFrontierLockID int64 = 7331

// LockClosingFrontierShared takes the frontier lock in shared mode.
// A no-op on dialects without advisory locks (SQLite's single writer
// already serializes these transactions).
func LockClosingFrontierShared(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock_shared(?)", closingFrontierLockID).Error
}

// LockClosingFrontier takes the frontier lock in exclusive mode.
func LockClosingFrontier(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", closingFrontierLockID).Error
}

// LatestClosedDateTx is the transaction-scoped variant used by the
// ledger service's commit guard.
func LatestClosedDateTx(tx *gorm.DB) (*time.Time, error) {
	var row struct {
		Date time.Time
	}
	err := tx.Model(&models.DayClosing{}).
		Select("date").
		Where("status = ?", models.ClosingStatusClosed).
		Order("date DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Date.IsZero() {
		return nil, nil
	}
	d := models.DateOnly(row.Date)
	return &d, nil
}

func (r *closingRepository) AnyClosedAfter(ctx context.Context, date time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DayClosing{}).
		Where("status = ? AND date > ?", models.ClosingStatusClosed, models.DateOnly(date)).
		Count(&count).Error
	return count > 0, err
}

func (r *closingRepository) Create(ctx context.Context, closing *models.DayClosing) error {
	closing.Date = models.DateOnly(closing.Date)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := LockClosingFrontier(tx); err != nil {
			return err
		}
		return tx.Create(closing).Error
	})
}

func (r *closingRepository) Update(ctx context.Context, closing *models.DayClosing) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := LockClosingFrontier(tx); err != nil {
			return err
		}
		res := tx.Model(&models.DayClosing{}).
			Where("id = ? AND lock_version = ?", closing.ID, closing.LockVersion).
			Updates(map[string]interface{}{
				"status":       closing.Status,
				"closed_at":    closing.ClosedAt,
				"closed_by":    closing.ClosedBy,
				"reopened_at":  closing.ReopenedAt,
				"reopened_by":  closing.ReopenedBy,
				"snapshot":     closing.Snapshot,
				"lock_version": closing.LockVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleClosing
		}
		closing.LockVersion++
		return nil
	})
}
