package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
)

type RecordPaymentRequest struct {
	BillID        string          `json:"billId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   *time.Time      `json:"paymentDate"`
	PaymentMethod string          `json:"paymentMethod"`
	Notes         string          `json:"notes"`
}

type RecordPaymentResult struct {
	Payment Payment            `json:"payment"`
	Bill    billingdomain.Bill `json:"bill"`
}

type Service interface {
	RecordPayment(context.Context, RecordPaymentRequest) (RecordPaymentResult, error)
	GetByID(context.Context, string) (Payment, error)
	List(context.Context) ([]Payment, error)
	ListByBill(context.Context, string) ([]Payment, error)
	ListByCustomer(context.Context, string) ([]Payment, error)
}

var (
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidBillID = errors.New("invalid_bill_id")
	ErrInvalidMethod = errors.New("invalid_payment_method")
	ErrNotFound      = errors.New("not_found")
	ErrBillNotFound  = errors.New("bill_not_found")
)
