package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type MeterReading struct {
	ID              snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_meter_readings_customer_period,priority:1" json:"customerId"`
	PeriodID        snowflake.ID    `gorm:"not null;uniqueIndex:ux_meter_readings_customer_period,priority:2;index" json:"periodId"`
	PreviousReading decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"previousReading"`
	CurrentReading  decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"currentReading"`
	ReadingDate     time.Time       `gorm:"not null" json:"readingDate"`
	Consumption     decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"consumption"`
	CreatedAt       time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updatedAt"`
}

func (MeterReading) TableName() string { return "meter_readings" }

// NewConsumption validates a reading pair and returns current - previous.
func NewConsumption(previous, current decimal.Decimal) (decimal.Decimal, error) {
	if previous.IsNegative() || current.IsNegative() {
		return decimal.Zero, ErrInvalidReading
	}
	if current.LessThan(previous) {
		return decimal.Zero, ErrInvalidReading
	}
	return current.Sub(previous), nil
}

// SetValues assigns both readings and recomputes consumption.
func (r *MeterReading) SetValues(previous, current decimal.Decimal) error {
	consumption, err := NewConsumption(previous, current)
	if err != nil {
		return err
	}
	r.PreviousReading = previous
	r.CurrentReading = current
	r.Consumption = consumption
	return nil
}
