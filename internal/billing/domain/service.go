package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
)

type RecordReadingRequest struct {
	CustomerID string `json:"customerId"`
	// PeriodID defaults to the active period.
	PeriodID        string           `json:"periodId"`
	PreviousReading *decimal.Decimal `json:"previousReading"`
	CurrentReading  decimal.Decimal  `json:"currentReading"`
	ReadingDate     *time.Time       `json:"readingDate"`
}

type RecordReadingResult struct {
	Reading     readingdomain.MeterReading `json:"reading"`
	Bill        Bill                       `json:"bill"`
	BillCreated bool                       `json:"billCreated"`
}

type Service interface {
	RecordReading(context.Context, RecordReadingRequest) (RecordReadingResult, error)
	GetByID(context.Context, string) (Bill, error)
	List(context.Context) ([]Bill, error)
	ListByCustomer(context.Context, string) ([]Bill, error)
	ListByPeriod(context.Context, string) ([]Bill, error)
}

var (
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidCustomerID      = errors.New("invalid_customer_id")
	ErrInvalidPeriodID        = errors.New("invalid_period_id")
	ErrInvalidTariff          = errors.New("invalid_tariff")
	ErrInvalidReading         = readingdomain.ErrInvalidReading
	ErrNonPositiveAmount      = errors.New("non_positive_amount")
	ErrAmountPrecision        = errors.New("invalid_amount_precision")
	ErrOverpayment            = errors.New("overpayment")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrNotFound               = errors.New("not_found")
	ErrCustomerNotFound       = errors.New("customer_not_found")
	ErrPeriodNotFound         = errors.New("period_not_found")
)
