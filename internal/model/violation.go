package model

import (
	"time"
)

// Violation policy infraction recorded against a trader
type Violation struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement;comment:violation id" json:"id"`
	ReportedUserID uint64     `gorm:"not null;index;comment:trader" json:"reported_user_id"`
	ReporterID     uint64     `gorm:"not null;default:0;comment:admin, 0 for system" json:"reporter_id"`
	ProductID      *uint64    `gorm:"index;comment:product disabled by this violation" json:"product_id,omitempty"`
	ViolationType  string     `gorm:"type:varchar(50);not null;comment:category" json:"violation_type"`
	Description    string     `gorm:"type:text;not null" json:"description"`
	Severity       string     `gorm:"type:varchar(10);not null;comment:low, medium, high" json:"severity"`
	Status         string     `gorm:"type:varchar(20);not null;index;comment:pending, resolved" json:"status"`
	ActionTaken    *string    `gorm:"type:varchar(20);comment:set on resolution" json:"action_taken,omitempty"`
	Notes          string     `gorm:"type:text" json:"notes"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	ReportedUser *User `gorm:"foreignKey:ReportedUserID" json:"reported_user,omitempty"`
}

// TableName set name
func (Violation) TableName() string {
	return "violations"
}

// Violation status
const (
	ViolationStatusPending  = "pending"
	ViolationStatusResolved = "resolved"
)

// Resolution actions
const (
	ActionWarning         = "warning"
	ActionAccountDisabled = "account_disabled"
	ActionDismissed       = "dismissed"
)

// Severity levels
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

const (
	// ViolationTypeProduct is recorded by the product-disable workflow
	ViolationTypeProduct = "product_violation"
	// SystemReporter marks violations not filed by a person
	SystemReporter uint64 = 0
)

// IsPending check if violation awaits resolution
func (v *Violation) IsPending() bool {
	return v.Status == ViolationStatusPending
}

func IsValidAction(action string) bool {
	return action == ActionWarning || action == ActionAccountDisabled || action == ActionDismissed
}

func IsValidSeverity(s string) bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}
