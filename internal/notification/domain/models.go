package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeCreate  Type = "create"
	TypeUpdate  Type = "update"
	TypeDelete  Type = "delete"
	TypePayment Type = "payment"
	TypePeriod  Type = "period"
	TypeOther   Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCreate, TypeUpdate, TypeDelete, TypePayment, TypePeriod, TypeOther:
		return true
	}
	return false
}

const (
	TargetCustomer = "customer"
	TargetReading  = "meter_reading"
	TargetBill     = "bill"
	TargetPayment  = "payment"
	TargetPeriod   = "billing_period"
	TargetSettings = "settings"
)

type Notification struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EventID    string            `gorm:"not null;size:26" json:"eventId"`
	Title      string            `gorm:"not null" json:"title"`
	Message    string            `gorm:"not null" json:"message"`
	Type       Type              `gorm:"not null;size:32" json:"type"`
	TargetType string            `gorm:"not null;size:64" json:"targetType"`
	TargetID   *string           `gorm:"size:64" json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"not null" json:"metadata,omitempty"`
	IsRead     bool              `gorm:"not null;default:false;index" json:"isRead"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"createdAt"`
}

func (Notification) TableName() string { return "notifications" }

// Event is emitted by the billing core after a mutation has been committed.
type Event struct {
	Type       Type
	Title      string
	Message    string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}
