package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// UpdateSettingsRequest is a partial update; nil fields are kept.
type UpdateSettingsRequest struct {
	KilowattPrice   *decimal.Decimal `json:"kilowattPrice"`
	SubscriptionFee *decimal.Decimal `json:"subscriptionFee"`
	TaxRate         *decimal.Decimal `json:"taxRate"`
}

type Service interface {
	// Get returns the saved settings, or the configured defaults if none were saved.
	Get(context.Context) (SystemSettings, error)
	Update(context.Context, UpdateSettingsRequest) (SystemSettings, error)
}

var (
	ErrInvalidKilowattPrice   = errors.New("invalid_kilowatt_price")
	ErrInvalidSubscriptionFee = errors.New("invalid_subscription_fee")
	ErrInvalidTaxRate         = errors.New("invalid_tax_rate")
	ErrEmptyUpdate            = errors.New("empty_update")
)
