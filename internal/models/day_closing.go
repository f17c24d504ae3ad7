package models

import (
	"time"
)

// DayClosing is the per-date lock record. A closed date makes every
// ledger event with an effective date on or before it immutable. Days
// must be closed in chronological order and reopened in reverse order.
type DayClosing struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Date        time.Time  `gorm:"type:date;uniqueIndex;not null" json:"date"`
	Status      string     `gorm:"default:open;not null;index" json:"status"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ClosedBy    string     `json:"closed_by,omitempty"`
	ReopenedAt  *time.Time `json:"reopened_at,omitempty"`
	ReopenedBy  string     `json:"reopened_by,omitempty"`
	Snapshot    string     `gorm:"type:text" json:"-"` // computed balances at close, JSON
	LockVersion int64      `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for DayClosing
func (DayClosing) TableName() string {
	return "day_closings"
}

// Closing status constants
const (
	ClosingStatusOpen   = "open"
	ClosingStatusClosed = "closed"
)

// IsClosed returns true if the date is locked
func (c *DayClosing) IsClosed() bool {
	return c.Status == ClosingStatusClosed
}

// MayClose returns true if the date can transition to closed
func (c *DayClosing) MayClose() bool {
	return c.Status == ClosingStatusOpen
}

// MayReopen returns true if the date can transition back to open
func (c *DayClosing) MayReopen() bool {
	return c.Status == ClosingStatusClosed
}

// ClosingSnapshot is the computed-balances snapshot stored on close for audit.
type ClosingSnapshot struct {
	Date             string `json:"date"`
	EventCount       int    `json:"event_count"`
	PaidTotal        string `json:"paid_total"`
	InterestPaid     string `json:"interest_paid"`
	PenaltyPaid      string `json:"penalty_paid"`
	DiscountApplied  string `json:"discount_applied"`
	OutstandingTotal string `json:"outstanding_total"`
	OpenObligations  int    `json:"open_obligations"`
}

// DayClosingResponse is the JSON response format for closings
type DayClosingResponse struct {
	Date       string     `json:"date"`
	Status     string     `json:"status"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ClosedBy   string     `json:"closed_by,omitempty"`
	ReopenedAt *time.Time `json:"reopened_at,omitempty"`
	ReopenedBy string     `json:"reopened_by,omitempty"`
}

// ToResponse converts DayClosing to DayClosingResponse
func (c *DayClosing) ToResponse() DayClosingResponse {
	return DayClosingResponse{
		Date:       c.Date.Format("2006-01-02"),
		Status:     c.Status,
		ClosedAt:   c.ClosedAt,
		ClosedBy:   c.ClosedBy,
		ReopenedAt: c.ReopenedAt,
		ReopenedBy: c.ReopenedBy,
	}
}

// DateOnly truncates t to its calendar date in UTC. Effective dates and
// closing dates are always compared at day granularity.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
