package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Obligation represents a single payable installment: one due amount of a
// purchase, loan, financing or recurring charge. The paid/interest/penalty/
// discount columns are accumulators maintained in the same transaction as
// every ledger event, so they always agree with replaying the event stream.
type Obligation struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	Creditor         string          `gorm:"not null;index" json:"creditor"`
	OriginType       string          `gorm:"not null;index" json:"origin_type"`
	InstallmentNo    int             `gorm:"not null" json:"installment_no"`
	InstallmentCount int             `gorm:"not null" json:"installment_count"`
	DueDate          time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	FaceValue        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"face_value"`
	PaidTotal        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"paid_total"`
	InterestPaid     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"interest_paid"`
	PenaltyPaid      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"penalty_paid"`
	DiscountApplied  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"discount_applied"`
	Status           string          `gorm:"default:open;not null;index" json:"status"`
	LockVersion      int64           `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Obligation
func (Obligation) TableName() string {
	return "obligations"
}

// Obligation status constants
const (
	ObligationStatusOpen          = "open"
	ObligationStatusPartiallyPaid = "partially_paid"
	ObligationStatusSettled       = "settled"
	ObligationStatusCancelled     = "cancelled"
)

// Origin type constants
const (
	OriginTypePurchase  = "purchase"
	OriginTypeLoan      = "loan"
	OriginTypeFinancing = "financing"
	OriginTypeRecurring = "recurring"
)

// MayMutate returns true if the obligation still accepts ledger events
func (o *Obligation) MayMutate() bool {
	return o.Status != ObligationStatusSettled && o.Status != ObligationStatusCancelled
}

// MayCancel returns true if the obligation can be cancelled
func (o *Obligation) MayCancel() bool {
	return o.Status == ObligationStatusOpen || o.Status == ObligationStatusPartiallyPaid
}

// IsOverdue returns true if the obligation is unpaid past its due date
func (o *Obligation) IsOverdue() bool {
	return o.MayMutate() && time.Now().After(o.DueDate)
}

// OverdueDays returns the number of days past due
func (o *Obligation) OverdueDays() int {
	if !o.IsOverdue() {
		return 0
	}
	return int(time.Since(o.DueDate).Hours() / 24)
}

// ObligationResponse is the JSON response format for obligations
type ObligationResponse struct {
	ID               string          `json:"id"`
	Creditor         string          `json:"creditor"`
	OriginType       string          `json:"origin_type"`
	InstallmentNo    int             `json:"installment_no"`
	InstallmentCount int             `json:"installment_count"`
	DueDate          time.Time       `json:"due_date"`
	FaceValue        decimal.Decimal `json:"face_value"`
	PaidTotal        decimal.Decimal `json:"paid_total"`
	InterestPaid     decimal.Decimal `json:"interest_paid"`
	PenaltyPaid      decimal.Decimal `json:"penalty_paid"`
	DiscountApplied  decimal.Decimal `json:"discount_applied"`
	PrincipalCovered decimal.Decimal `json:"principal_covered"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	Status           string          `json:"status"`
	OverdueDays      int             `json:"overdue_days"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ToResponse converts Obligation to ObligationResponse. The derived
// principal/outstanding columns use the same formulas as the projector.
func (o *Obligation) ToResponse() ObligationResponse {
	principal := o.PaidTotal.Sub(o.InterestPaid).Sub(o.PenaltyPaid).Add(o.DiscountApplied)
	return ObligationResponse{
		ID:               o.ID,
		Creditor:         o.Creditor,
		OriginType:       o.OriginType,
		InstallmentNo:    o.InstallmentNo,
		InstallmentCount: o.InstallmentCount,
		DueDate:          o.DueDate,
		FaceValue:        o.FaceValue,
		PaidTotal:        o.PaidTotal,
		InterestPaid:     o.InterestPaid,
		PenaltyPaid:      o.PenaltyPaid,
		DiscountApplied:  o.DiscountApplied,
		PrincipalCovered: principal,
		Outstanding:      o.FaceValue.Sub(principal),
		Status:           o.Status,
		OverdueDays:      o.OverdueDays(),
		CreatedAt:        o.CreatedAt,
	}
}
