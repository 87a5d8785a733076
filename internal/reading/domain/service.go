package domain

import (
	"context"
	"errors"
)

type Service interface {
	GetByID(context.Context, string) (MeterReading, error)
	ListByCustomer(context.Context, string) ([]MeterReading, error)
	// Latest returns the customer's most recent reading, used to prefill the next one.
	Latest(context.Context, string) (*MeterReading, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidCustomerID = errors.New("invalid_customer_id")
	ErrInvalidReading    = errors.New("invalid_reading")
	ErrNotFound          = errors.New("not_found")
)
