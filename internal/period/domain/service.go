package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
)

type OpenPeriodRequest struct {
	Name      string     `json:"name"`
	StartDate *time.Time `json:"startDate"`
	// PreviousEndDate closes the currently active period. When nil the previous
	// period keeps its own end date, or takes the new start date if it has none.
	PreviousEndDate *time.Time `json:"previousEndDate"`
	EndDate         *time.Time `json:"endDate"`
}

// CarryForwardFailure records a customer whose balance could not be carried.
type CarryForwardFailure struct {
	CustomerID snowflake.ID `json:"customerId"`
	Err        error        `json:"-"`
	Message    string       `json:"error"`
}

type OpenPeriodResult struct {
	Period         BillingPeriod         `json:"period"`
	PreviousPeriod *BillingPeriod        `json:"previousPeriod,omitempty"`
	CarriedForward []billingdomain.Bill  `json:"carriedForward"`
	Failures       []CarryForwardFailure `json:"failures"`
}

type CarryForwardRequest struct {
	FromPeriodID string `json:"fromPeriodId"`
	ToPeriodID   string `json:"-"`
	CustomerID   string `json:"customerId"`
}

type Service interface {
	List(context.Context) ([]BillingPeriod, error)
	GetByID(context.Context, string) (BillingPeriod, error)
	GetActive(context.Context) (BillingPeriod, error)
	Activate(context.Context, string) (BillingPeriod, error)
	OpenNewPeriod(context.Context, OpenPeriodRequest) (OpenPeriodResult, error)
	// CarryForward retries one customer's rollover. An existing bill in the
	// target period is returned unchanged; nil means nothing was owed.
	CarryForward(context.Context, CarryForwardRequest) (*billingdomain.Bill, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrNotFound         = errors.New("not_found")
	ErrNoActivePeriod   = errors.New("no_active_period")
	ErrSamePeriod       = errors.New("same_period")
)
