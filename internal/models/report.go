package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayablesSummary aggregates the open portfolio position
type PayablesSummary struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	TotalCount       int             `json:"total_count"`
	OpenCount        int             `json:"open_count"`
	OverdueCount     int             `json:"overdue_count"`
	SettledCount     int             `json:"settled_count"`
	CancelledCount   int             `json:"cancelled_count"`
	FaceTotal        decimal.Decimal `json:"face_total"`
	PaidTotal        decimal.Decimal `json:"paid_total"`
	InterestTotal    decimal.Decimal `json:"interest_total"`
	PenaltyTotal     decimal.Decimal `json:"penalty_total"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	OutstandingTotal decimal.Decimal `json:"outstanding_total"`
}
