package domain

import (
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
)

// SingletonID is the primary key of the only settings row.
const SingletonID = 1

type SystemSettings struct {
	ID              int64           `gorm:"primaryKey;autoIncrement:false" json:"-"`
	KilowattPrice   decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"kilowattPrice"`
	SubscriptionFee decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"subscriptionFee"`
	TaxRate         decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"taxRate"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updatedAt"`
}

func (SystemSettings) TableName() string { return "system_settings" }

func (s SystemSettings) Tariff() billingdomain.Tariff {
	return billingdomain.Tariff{
		KilowattPrice:   s.KilowattPrice,
		SubscriptionFee: s.SubscriptionFee,
		TaxRate:         s.TaxRate,
	}
}

func (s SystemSettings) Validate() error {
	if !s.KilowattPrice.IsPositive() {
		return ErrInvalidKilowattPrice
	}
	if s.SubscriptionFee.IsNegative() {
		return ErrInvalidSubscriptionFee
	}
	if s.TaxRate.IsNegative() || s.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	return nil
}
