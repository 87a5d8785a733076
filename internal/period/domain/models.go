package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingPeriod is a named billing window. At most one period is active.
type BillingPeriod struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Code      string       `gorm:"not null;size:128" json:"code"`
	StartDate time.Time    `gorm:"not null" json:"startDate"`
	EndDate   *time.Time   `json:"endDate,omitempty"`
	IsActive  bool         `gorm:"not null;default:false" json:"isActive"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (BillingPeriod) TableName() string { return "billing_periods" }
