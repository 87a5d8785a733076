package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
)

const (
	DefaultTopConsumers   = 5
	DefaultRecentPayments = 5
	MaxListSize           = 100

	// DefaultContractType buckets customers with no contract type.
	DefaultContractType = "residential"
)

// PeriodSummary aggregates the bills issued in one period.
// OutstandingAmount = TotalAmount - PaidAmount.
type PeriodSummary struct {
	Period            perioddomain.BillingPeriod `json:"period"`
	BillCount         int                        `json:"billCount"`
	TotalAmount       decimal.Decimal            `json:"totalAmount"`
	PaidAmount        decimal.Decimal            `json:"paidAmount"`
	OutstandingAmount decimal.Decimal            `json:"outstandingAmount"`
}

type ContractTypeTotal struct {
	ContractType string          `json:"contractType"`
	Customers    int             `json:"customers"`
	Billed       decimal.Decimal `json:"billed"`
}

type ConsumerTotal struct {
	CustomerID  snowflake.ID    `json:"customerId"`
	Name        string          `json:"name"`
	Consumption decimal.Decimal `json:"consumption"`
}

// Overview is the dashboard view over every customer, bill and payment.
//
// TotalBilled counts new charges only, so balances carried between periods
// are not billed twice. TotalOutstanding is what customers owe on their most
// recent bill.
type Overview struct {
	CustomerCount        int                     `json:"customerCount"`
	BillCount            int                     `json:"billCount"`
	TotalBilled          decimal.Decimal         `json:"totalBilled"`
	TotalPaid            decimal.Decimal         `json:"totalPaid"`
	TotalOutstanding     decimal.Decimal         `json:"totalOutstanding"`
	BilledByContractType []ContractTypeTotal     `json:"billedByContractType"`
	TopConsumers         []ConsumerTotal         `json:"topConsumers"`
	RecentPayments       []paymentdomain.Payment `json:"recentPayments"`
	ActivePeriod         *PeriodSummary          `json:"activePeriod,omitempty"`
	Periods              []PeriodSummary         `json:"periods"`
	GeneratedAt          time.Time               `json:"generatedAt"`
}

// OverviewRequest limits the ranked lists; zero means the default size.
type OverviewRequest struct {
	TopConsumers   int
	RecentPayments int
}

type Service interface {
	PeriodSummary(ctx context.Context, periodID string) (PeriodSummary, error)
	Overview(ctx context.Context, req OverviewRequest) (Overview, error)
}

var (
	ErrInvalidTop    = errors.New("invalid_top")
	ErrInvalidRecent = errors.New("invalid_recent")
)
