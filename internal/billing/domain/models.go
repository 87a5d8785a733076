package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceMetered      Source = "metered"
	SourceCarryForward Source = "carry_forward"
)

// Bill is the amount owed by one customer for one billing period.
//
// TotalAmount = ConsumptionCost + SubscriptionFee + TaxAmount + PreviousBalance
// RemainingAmount = TotalAmount - PaidAmount
// IsPaid = RemainingAmount <= 0
type Bill struct {
	ID              snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_bills_customer_period,priority:1" json:"customerId"`
	PeriodID        snowflake.ID    `gorm:"not null;uniqueIndex:ux_bills_customer_period,priority:2;index" json:"periodId"`
	MeterReadingID  snowflake.ID    `gorm:"not null;index" json:"meterReadingId"`
	Source          Source          `gorm:"not null;size:32;default:metered" json:"source"`
	Consumption     decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"consumption"`
	ConsumptionCost decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"consumptionCost"`
	SubscriptionFee decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"subscriptionFee"`
	TaxAmount       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"taxAmount"`
	PreviousBalance decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"previousBalance"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"totalAmount"`
	PaidAmount      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"paidAmount"`
	RemainingAmount decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"remainingAmount"`
	IsPaid          bool            `gorm:"not null;default:false" json:"isPaid"`
	IssueDate       time.Time       `gorm:"not null" json:"issueDate"`
	DueDate         *time.Time      `json:"dueDate,omitempty"`
	Version         int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updatedAt"`
}

func (Bill) TableName() string { return "bills" }

// Tariff is the pricing applied when a bill is computed.
type Tariff struct {
	KilowattPrice   decimal.Decimal `json:"kilowattPrice"`
	SubscriptionFee decimal.Decimal `json:"subscriptionFee"`
	TaxRate         decimal.Decimal `json:"taxRate"`
}

func (t Tariff) Validate() error {
	if !t.KilowattPrice.IsPositive() {
		return ErrInvalidTariff
	}
	if t.SubscriptionFee.IsNegative() {
		return ErrInvalidTariff
	}
	if t.TaxRate.IsNegative() || t.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTariff
	}
	return nil
}
