package domain

import (
	"context"
	"errors"
)

type CreateCustomerRequest struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	AccountNumber string `json:"accountNumber"`
	MeterNumber   string `json:"meterNumber"`
	ContractType  string `json:"contractType"`
	Notes         string `json:"notes"`
}

// UpdateCustomerRequest is a partial update; nil fields are left unchanged.
type UpdateCustomerRequest struct {
	ID            string  `json:"-"`
	Name          *string `json:"name"`
	Address       *string `json:"address"`
	Phone         *string `json:"phone"`
	AccountNumber *string `json:"accountNumber"`
	MeterNumber   *string `json:"meterNumber"`
	ContractType  *string `json:"contractType"`
	Notes         *string `json:"notes"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context) ([]Customer, error)
	GetByID(context.Context, string) (Customer, error)
	Update(context.Context, UpdateCustomerRequest) (Customer, error)
	Delete(context.Context, string) error
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidAccountNumber = errors.New("invalid_account_number")
	ErrInvalidMeterNumber   = errors.New("invalid_meter_number")
	ErrDuplicateAccount     = errors.New("duplicate_account_number")
	ErrOutstandingBalance   = errors.New("outstanding_balance")
	ErrNotFound             = errors.New("not_found")
)
