package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Customer struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name          string       `gorm:"not null" json:"name"`
	Address       string       `gorm:"not null;default:''" json:"address"`
	Phone         string       `gorm:"not null;default:''" json:"phone"`
	AccountNumber string       `gorm:"not null;size:64;uniqueIndex:ux_customers_account_number" json:"accountNumber"`
	MeterNumber   string       `gorm:"not null;size:64" json:"meterNumber"`
	ContractType  string       `gorm:"not null;default:''" json:"contractType,omitempty"`
	Notes         string       `gorm:"not null;default:''" json:"notes,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updatedAt"`
}

func (Customer) TableName() string { return "customers" }
