package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/observability/tracing"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsservice "github.com/smallbiznis/meterbill/internal/settings/service"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	opRecordReading = "record_reading"

	// A first submission that loses a unique-key race is retried once and then
	// takes the resubmission path.
	maxRecordAttempts = 2
)

var tracer = otel.Tracer("meterbill/billing")

type Params struct {
	fx.In

	Store   storedomain.Store
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Metrics *obsmetrics.Metrics        `optional:"true"`
	Emitter notificationdomain.Emitter `optional:"true"`
}

type Service struct {
	store   storedomain.Store
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	metrics *obsmetrics.Metrics
	emitter notificationdomain.Emitter
}

func New(p Params) domain.Service {
	emitter := p.Emitter
	if emitter == nil {
		emitter = notificationdomain.EmitterFunc(func(context.Context, notificationdomain.Event) {})
	}
	return &Service{
		store:   p.Store,
		log:     p.Log.Named("billing.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		metrics: p.Metrics,
		emitter: emitter,
	}
}

// RecordReading upserts the customer's reading for the period and derives the
// bill from it. A resubmission updates both the reading and the existing bill,
// keeping the bill's carried balance and payments.
func (s *Service) RecordReading(ctx context.Context, req domain.RecordReadingRequest) (result domain.RecordReadingResult, err error) {
	ctx, span := tracer.Start(ctx, "billing.record_reading")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "record reading failed")
		}
		span.End()
	}()

	customerID, err := parseID(req.CustomerID, domain.ErrInvalidCustomerID)
	if err != nil {
		return domain.RecordReadingResult{}, err
	}
	var periodID snowflake.ID
	if strings.TrimSpace(req.PeriodID) != "" {
		if periodID, err = parseID(req.PeriodID, domain.ErrInvalidPeriodID); err != nil {
			return domain.RecordReadingResult{}, err
		}
	}
	if req.CurrentReading.IsNegative() || (req.PreviousReading != nil && req.PreviousReading.IsNegative()) {
		return domain.RecordReadingResult{}, domain.ErrInvalidReading
	}

	var resubmitted bool
	for attempt := 1; ; attempt++ {
		result, resubmitted, err = s.recordReading(ctx, customerID, periodID, req)
		if err == nil || !storedomain.IsDuplicate(err) {
			break
		}
		if attempt == maxRecordAttempts {
			err = fmt.Errorf("%w: reading for customer %s recorded concurrently", domain.ErrConcurrentModification, customerID)
			break
		}
		logger.WithContext(ctx, s.log).Warn("reading recorded concurrently, retrying",
			zap.String("customer_id", customerID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		return domain.RecordReadingResult{}, err
	}

	span.SetAttributes(
		attribute.Bool("reading.resubmitted", resubmitted),
		attribute.Bool("bill.created", result.BillCreated),
	)
	s.metrics.RecordReading(ctx, resubmitted)
	s.metrics.RecordBill(ctx, string(result.Bill.Source), result.BillCreated)

	logger.WithContext(ctx, s.log).Info("reading recorded",
		zap.String("customer_id", customerID.String()),
		zap.String("period_id", result.Reading.PeriodID.String()),
		zap.String("bill_id", result.Bill.ID.String()),
		zap.Bool("resubmitted", resubmitted),
		zap.String("total_amount", result.Bill.TotalAmount.String()),
	)

	title, eventType := "Bill issued", notificationdomain.TypeCreate
	if !result.BillCreated {
		title, eventType = "Bill updated", notificationdomain.TypeUpdate
	}
	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       eventType,
		Title:      title,
		Message:    "Consumption " + result.Reading.Consumption.String() + " kWh, total " + result.Bill.TotalAmount.StringFixed(domain.MoneyPlaces),
		TargetType: notificationdomain.TargetBill,
		TargetID:   result.Bill.ID.String(),
		Metadata: map[string]any{
			"customerId": customerID.String(),
			"readingId":  result.Reading.ID.String(),
			"periodId":   result.Reading.PeriodID.String(),
		},
	})
	return result, nil
}

// recordReading runs one attempt of RecordReading in its own transaction.
func (s *Service) recordReading(
	ctx context.Context,
	customerID, periodID snowflake.ID,
	req domain.RecordReadingRequest,
) (result domain.RecordReadingResult, resubmitted bool, err error) {
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		customer, err := tx.Customers().FindByID(ctx, customerID)
		if err != nil {
			return storedomain.Wrap(opRecordReading, "load_customer", err)
		}
		if customer == nil {
			return domain.ErrCustomerNotFound
		}

		period, err := s.resolvePeriod(ctx, tx, periodID)
		if err != nil {
			return err
		}

		settings, err := settingsservice.Resolve(ctx, tx, s.billing)
		if err != nil {
			return storedomain.Wrap(opRecordReading, "load_settings", err)
		}
		tariff := settings.Tariff()
		if err := tariff.Validate(); err != nil {
			return err
		}

		reading, existed, err := s.upsertReading(ctx, tx, customerID, period.ID, req)
		if err != nil {
			return err
		}
		resubmitted = existed

		bill, created, err := s.upsertBill(ctx, tx, reading, *period, tariff)
		if err != nil {
			return err
		}

		result = domain.RecordReadingResult{Reading: reading, Bill: bill, BillCreated: created}
		return nil
	})
	return result, resubmitted, err
}

func (s *Service) resolvePeriod(ctx context.Context, tx storedomain.Store, periodID snowflake.ID) (*perioddomain.BillingPeriod, error) {
	if periodID == 0 {
		active, err := tx.Periods().FindActive(ctx)
		if err != nil {
			return nil, storedomain.Wrap(opRecordReading, "load_period", err)
		}
		if active == nil {
			return nil, perioddomain.ErrNoActivePeriod
		}
		return active, nil
	}
	period, err := tx.Periods().FindByID(ctx, periodID)
	if err != nil {
		return nil, storedomain.Wrap(opRecordReading, "load_period", err)
	}
	if period == nil {
		return nil, domain.ErrPeriodNotFound
	}
	return period, nil
}

func (s *Service) upsertReading(
	ctx context.Context,
	tx storedomain.Store,
	customerID, periodID snowflake.ID,
	req domain.RecordReadingRequest,
) (readingdomain.MeterReading, bool, error) {
	now := s.clock.Now()
	existing, err := tx.Readings().FindByCustomerAndPeriod(ctx, customerID, periodID)
	if err != nil {
		return readingdomain.MeterReading{}, false, storedomain.Wrap(opRecordReading, "load_reading", err)
	}

	if existing != nil {
		reading := *existing
		previous := reading.PreviousReading
		if req.PreviousReading != nil {
			previous = *req.PreviousReading
		}
		if err := reading.SetValues(previous, req.CurrentReading); err != nil {
			return readingdomain.MeterReading{}, false, err
		}
		if req.ReadingDate != nil {
			reading.ReadingDate = req.ReadingDate.UTC()
		}
		reading.UpdatedAt = now
		if err := tx.Readings().Update(ctx, &reading); err != nil {
			return readingdomain.MeterReading{}, false, storedomain.Wrap(opRecordReading, "update_reading", err)
		}
		return reading, true, nil
	}

	previous := decimal.Zero
	if req.PreviousReading != nil {
		previous = *req.PreviousReading
	} else {
		latest, err := tx.Readings().FindLatestByCustomer(ctx, customerID)
		if err != nil {
			return readingdomain.MeterReading{}, false, storedomain.Wrap(opRecordReading, "load_latest_reading", err)
		}
		if latest != nil {
			previous = latest.CurrentReading
		}
	}

	reading := readingdomain.MeterReading{
		ID:          s.genID.Generate(),
		CustomerID:  customerID,
		PeriodID:    periodID,
		ReadingDate: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ReadingDate != nil {
		reading.ReadingDate = req.ReadingDate.UTC()
	}
	if err := reading.SetValues(previous, req.CurrentReading); err != nil {
		return readingdomain.MeterReading{}, false, err
	}
	if err := tx.Readings().Insert(ctx, &reading); err != nil {
		return readingdomain.MeterReading{}, false, storedomain.Wrap(opRecordReading, "insert_reading", err)
	}
	return reading, false, nil
}

func (s *Service) upsertBill(
	ctx context.Context,
	tx storedomain.Store,
	reading readingdomain.MeterReading,
	period perioddomain.BillingPeriod,
	tariff domain.Tariff,
) (domain.Bill, bool, error) {
	now := s.clock.Now()
	existing, err := tx.Bills().FindByCustomerAndPeriod(ctx, reading.CustomerID, period.ID)
	if err != nil {
		return domain.Bill{}, false, storedomain.Wrap(opRecordReading, "load_bill", err)
	}

	if existing != nil {
		bill, err := domain.Recompute(*existing, reading, tariff)
		if err != nil {
			return domain.Bill{}, false, err
		}
		bill.UpdatedAt = now
		if err := tx.Bills().Update(ctx, &bill); err != nil {
			return domain.Bill{}, false, storedomain.Wrap(opRecordReading, "update_bill", err)
		}
		return bill, false, nil
	}

	balance, err := s.previousBalance(ctx, tx, reading.CustomerID, period)
	if err != nil {
		return domain.Bill{}, false, err
	}
	bill, err := domain.Compute(reading, tariff, balance)
	if err != nil {
		return domain.Bill{}, false, err
	}
	bill.ID = s.genID.Generate()
	bill.IssueDate = now
	bill.CreatedAt = now
	bill.UpdatedAt = now
	if days := s.dueInDays(); days > 0 {
		due := now.AddDate(0, 0, days)
		bill.DueDate = &due
	}
	if err := tx.Bills().Insert(ctx, &bill); err != nil {
		return domain.Bill{}, false, storedomain.Wrap(opRecordReading, "insert_bill", err)
	}
	return bill, true, nil
}

// previousBalance is the unpaid remainder of the customer's bill in the period
// that started immediately before period.
func (s *Service) previousBalance(ctx context.Context, tx storedomain.Store, customerID snowflake.ID, period perioddomain.BillingPeriod) (decimal.Decimal, error) {
	periods, err := tx.Periods().List(ctx)
	if err != nil {
		return decimal.Zero, storedomain.Wrap(opRecordReading, "load_periods", err)
	}
	prev := precedingPeriod(periods, period)
	if prev == nil {
		return decimal.Zero, nil
	}
	bill, err := tx.Bills().FindByCustomerAndPeriod(ctx, customerID, prev.ID)
	if err != nil {
		return decimal.Zero, storedomain.Wrap(opRecordReading, "load_previous_bill", err)
	}
	if bill == nil || !bill.RemainingAmount.IsPositive() {
		return decimal.Zero, nil
	}
	return bill.RemainingAmount, nil
}

func precedingPeriod(periods []perioddomain.BillingPeriod, current perioddomain.BillingPeriod) *perioddomain.BillingPeriod {
	var best *perioddomain.BillingPeriod
	for i := range periods {
		p := &periods[i]
		if p.ID == current.ID || !p.StartDate.Before(current.StartDate) {
			continue
		}
		if best == nil || p.StartDate.After(best.StartDate) {
			best = p
		}
	}
	return best
}

func (s *Service) dueInDays() int {
	if s.billing == nil {
		return 0
	}
	return s.billing.Get().DueInDays
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Bill, error) {
	billID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Bill{}, err
	}
	bill, err := s.store.Bills().FindByID(ctx, billID)
	if err != nil {
		return domain.Bill{}, err
	}
	if bill == nil {
		return domain.Bill{}, domain.ErrNotFound
	}
	return *bill, nil
}

// List returns every bill, newest issue date first.
func (s *Service) List(ctx context.Context) ([]domain.Bill, error) {
	return nonNil(s.store.Bills().List(ctx))
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.Bill, error) {
	id, err := parseID(customerID, domain.ErrInvalidCustomerID)
	if err != nil {
		return nil, err
	}
	return nonNil(s.store.Bills().ListByCustomer(ctx, id))
}

func (s *Service) ListByPeriod(ctx context.Context, periodID string) ([]domain.Bill, error) {
	id, err := parseID(periodID, domain.ErrInvalidPeriodID)
	if err != nil {
		return nil, err
	}
	return nonNil(s.store.Bills().ListByPeriod(ctx, id))
}

func nonNil(items []domain.Bill, err error) ([]domain.Bill, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Bill{}
	}
	return items, nil
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
