package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEvent is an immutable, append-only fact against an obligation.
// Events are never edited or deleted; corrections are compensating
// reversal events. The obligation accumulators are the fold of its
// events in id order (ids are time-ordered UUIDv7).
type LedgerEvent struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	ObligationID   string          `gorm:"size:36;not null;index" json:"obligation_id"`
	Kind           string          `gorm:"not null;index" json:"kind"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	EffectiveDate  time.Time       `gorm:"type:date;not null;index" json:"effective_date"`
	Actor          string          `gorm:"not null" json:"actor"`
	IdempotencyKey string          `gorm:"uniqueIndex;not null;size:64" json:"idempotency_key"`
	// ParentEventID links breakdown sub-events (interest/penalty/discount
	// portions of a payment) to their payment event.
	ParentEventID *string `gorm:"size:36;index" json:"parent_event_id,omitempty"`
	// ReversesEventID is set on reversal events and points at the event
	// being compensated.
	ReversesEventID *string   `gorm:"size:36;index" json:"reverses_event_id,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`

	// Associations
	Obligation *Obligation `gorm:"foreignKey:ObligationID" json:"obligation,omitempty"`
}

// TableName specifies the table name for LedgerEvent
func (LedgerEvent) TableName() string {
	return "ledger_events"
}

// Event kind constants
const (
	EventKindOrigination        = "origination"
	EventKindPayment            = "payment"
	EventKindInterestAdjustment = "interest_adjustment"
	EventKindPenaltyAdjustment  = "penalty_adjustment"
	EventKindDiscountAdjustment = "discount_adjustment"
	EventKindCancellation       = "cancellation"
	EventKindReversal           = "reversal"
)

// AdjustmentKinds are the kinds accepted by the standalone adjust operation.
var AdjustmentKinds = map[string]bool{
	EventKindInterestAdjustment: true,
	EventKindPenaltyAdjustment:  true,
	EventKindDiscountAdjustment: true,
}

// IsReversal returns true for compensating events
func (e *LedgerEvent) IsReversal() bool {
	return e.Kind == EventKindReversal
}

// LedgerEventResponse is the JSON response format for ledger events
type LedgerEventResponse struct {
	ID              string          `json:"id"`
	ObligationID    string          `json:"obligation_id"`
	Kind            string          `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	EffectiveDate   time.Time       `json:"effective_date"`
	Actor           string          `json:"actor"`
	IdempotencyKey  string          `json:"idempotency_key"`
	ParentEventID   *string         `json:"parent_event_id,omitempty"`
	ReversesEventID *string         `json:"reverses_event_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ToResponse converts LedgerEvent to LedgerEventResponse
func (e *LedgerEvent) ToResponse() LedgerEventResponse {
	return LedgerEventResponse{
		ID:              e.ID,
		ObligationID:    e.ObligationID,
		Kind:            e.Kind,
		Amount:          e.Amount,
		EffectiveDate:   e.EffectiveDate,
		Actor:           e.Actor,
		IdempotencyKey:  e.IdempotencyKey,
		ParentEventID:   e.ParentEventID,
		ReversesEventID: e.ReversesEventID,
		CreatedAt:       e.CreatedAt,
	}
}
