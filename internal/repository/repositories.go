package repository

import (
	"errors"

	"gorm.io/gorm"
)

// Store-level errors. Services translate these into their own taxonomy
// (duplicate appends become success-equivalent replays, stale rows are
// retried).
var (
	ErrDuplicateEvent     = errors.New("evento duplicado (idempotency key já registrada)")
	ErrObligationNotFound = errors.New("obrigação não encontrada")
	ErrStaleObligation    = errors.New("obrigação alterada por outra transação")
	ErrClosingNotFound    = errors.New("fechamento não encontrado")
	ErrStaleClosing       = errors.New("fechamento alterado por outra transação")
)

// ListQuery carries pagination, filtering and sorting parameters
type ListQuery struct {
	Page    int
	PerPage int
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
		Filters: make(map[string]string),
	}
}

// Repositories holds all repository instances
type Repositories struct {
	Obligation ObligationRepository
	Event      EventRepository
	Closing    ClosingRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Obligation: NewObligationRepository(db),
		Event:      NewEventRepository(db),
		Closing:    NewClosingRepository(db),
	}
}
