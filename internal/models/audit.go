package models

import (
	"time"
)

// AuditLog represents a system audit entry. The actor identity comes
// from the authentication collaborator (JWT subject), not a local user
// table.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `gorm:"size:100;not null;index" json:"actor"`
	Action    string    `gorm:"size:50;not null" json:"action"` // ORIGINATE, PAYMENT, ADJUST, CANCEL, REVERSE, CLOSE, REOPEN
	Entity    string    `gorm:"size:50;not null" json:"entity"` // Obligation, LedgerEvent, DayClosing
	EntityID  string    `gorm:"size:36" json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
