package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vmtorres/payables-api/internal/models"

	"gorm.io/gorm"
)

// ObligationRepository defines the interface for obligation data access
type ObligationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Obligation, error)
	List(ctx context.Context, query *ListQuery) ([]models.Obligation, int64, error)
	FindOpen(ctx context.Context) ([]models.Obligation, error)
	FindOverdue(ctx context.Context) ([]models.Obligation, error)
}

type obligationRepository struct {
	db *gorm.DB
}

// NewObligationRepository creates a new obligation repository
func NewObligationRepository(db *gorm.DB) ObligationRepository {
	return &obligationRepository{db: db}
}

func (r *obligationRepository) FindByID(ctx context.Context, id string) (*models.Obligation, error) {
	var obligation models.Obligation
	err := r.db.WithContext(ctx).First(&obligation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrObligationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &obligation, nil
}

// List retrieves obligations with pagination and filters
func (r *obligationRepository) List(ctx context.Context, query *ListQuery) ([]models.Obligation, int64, error) {
	var obligations []models.Obligation
	var total int64

	tx := r.db.WithContext(ctx).Model(&models.Obligation{})

	if status := query.Filters["status"]; status != "" {
		tx = tx.Where("status = ?", status)
	}
	if origin := query.Filters["origin_type"]; origin != "" {
		tx = tx.Where("origin_type = ?", origin)
	}
	if creditor := query.Filters["creditor"]; creditor != "" {
		tx = tx.Where("creditor LIKE ?", "%"+creditor+"%")
	}
	if start := query.Filters["start_date"]; start != "" {
		tx = tx.Where("due_date >= ?", start)
	}
	if end := query.Filters["end_date"]; end != "" {
		tx = tx.Where("due_date <= ?", end)
	}

	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := "due_date"
	switch query.SortBy {
	case "creditor", "due_date", "status", "created_at", "face_value":
		sortBy = query.SortBy
	}
	sortDir := "asc"
	if query.SortDir == "desc" {
		sortDir = "desc"
	}

	tx = tx.Order(sortBy + " " + sortDir)
	if query.PerPage > 0 {
		tx = tx.Limit(query.PerPage).Offset((query.Page - 1) * query.PerPage)
	}
	err := tx.Find(&obligations).Error

	return obligations, total, err
}

// FindOpen retrieves all obligations still accepting events
func (r *obligationRepository) FindOpen(ctx context.Context) ([]models.Obligation, error) {
	var obligations []models.Obligation
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.ObligationStatusOpen, models.ObligationStatusPartiallyPaid}).
		Order("due_date ASC").
		Find(&obligations).Error
	return obligations, err
}

// FindOverdue retrieves open obligations past their due date
func (r *obligationRepository) FindOverdue(ctx context.Context) ([]models.Obligation, error) {
	var obligations []models.Obligation
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.ObligationStatusOpen, models.ObligationStatusPartiallyPaid}).
		Where("due_date < ?", models.DateOnly(time.Now())).
		Order("due_date ASC").
		Find(&obligations).Error
	return obligations, err
}
