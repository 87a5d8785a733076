package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash  Method = "cash"
	MethodCard  Method = "card"
	MethodBank  Method = "bank"
	MethodOther Method = "other"
)

// ParseMethod normalizes a payment method; empty means cash.
func ParseMethod(raw string) (Method, error) {
	switch m := Method(raw); m {
	case "":
		return MethodCash, nil
	case MethodCash, MethodCard, MethodBank, MethodOther:
		return m, nil
	default:
		return "", ErrInvalidMethod
	}
}

// Payment is immutable once recorded.
type Payment struct {
	ID            snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	BillID        snowflake.ID    `gorm:"not null;index" json:"billId"`
	CustomerID    snowflake.ID    `gorm:"not null;index" json:"customerId"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"not null" json:"paymentDate"`
	PaymentMethod Method          `gorm:"not null;size:16" json:"paymentMethod"`
	Notes         string          `gorm:"not null;default:''" json:"notes,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"createdAt"`
}

func (Payment) TableName() string { return "payments" }
