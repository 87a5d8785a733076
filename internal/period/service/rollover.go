package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"github.com/smallbiznis/meterbill/internal/observability/tracing"
	"github.com/smallbiznis/meterbill/internal/period/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opOpenPeriod   = "open_period"
	opCarryForward = "carry_forward"

	defaultRolloverConcurrency = 4
)

var tracer = otel.Tracer("meterbill/period")

// OpenNewPeriod closes the active period, opens a new active one and carries
// every unpaid balance of the closed period into it. The period switch is atomic;
// each customer's carry-forward commits on its own and failures are reported in
// the result instead of failing the call.
func (s *Service) OpenNewPeriod(ctx context.Context, req domain.OpenPeriodRequest) (result domain.OpenPeriodResult, err error) {
	ctx, span := tracer.Start(ctx, "period.open_new_period")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "open period failed")
		}
		span.End()
	}()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.OpenPeriodResult{}, domain.ErrInvalidName
	}
	now := s.clock.Now()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if req.EndDate != nil && !req.EndDate.After(start) {
		return domain.OpenPeriodResult{}, domain.ErrInvalidDateRange
	}

	period := domain.BillingPeriod{
		ID:        s.genID.Generate(),
		Name:      name,
		StartDate: start,
		IsActive:  true,
		CreatedAt: now,
	}
	period.Code = slug.Make(name)
	if period.Code == "" {
		period.Code = period.ID.String()
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		period.EndDate = &end
	}

	var previous *domain.BillingPeriod
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		active, err := tx.Periods().FindActive(ctx)
		if err != nil {
			return storedomain.Wrap(opOpenPeriod, "load_active_period", err)
		}
		if err := tx.Periods().DeactivateAll(ctx); err != nil {
			return storedomain.Wrap(opOpenPeriod, "deactivate_periods", err)
		}
		if active != nil {
			closed := *active
			closed.IsActive = false
			switch {
			case req.PreviousEndDate != nil:
				end := req.PreviousEndDate.UTC()
				closed.EndDate = &end
			case closed.EndDate == nil:
				end := start
				closed.EndDate = &end
			}
			if closed.EndDate.Before(closed.StartDate) {
				return domain.ErrInvalidDateRange
			}
			if err := tx.Periods().Update(ctx, &closed); err != nil {
				return storedomain.Wrap(opOpenPeriod, "close_period", err)
			}
			previous = &closed
		}
		if err := tx.Periods().Insert(ctx, &period); err != nil {
			return storedomain.Wrap(opOpenPeriod, "insert_period", err)
		}
		return nil
	})
	if err != nil {
		return domain.OpenPeriodResult{}, err
	}
	s.metrics.RecordPeriodOpened(ctx)

	result = domain.OpenPeriodResult{
		Period:         period,
		PreviousPeriod: previous,
		CarriedForward: []billingdomain.Bill{},
		Failures:       []domain.CarryForwardFailure{},
	}
	if previous != nil {
		result.CarriedForward, result.Failures = s.rollover(ctx, previous.ID, period.ID)
	}

	span.SetAttributes(
		attribute.Int("rollover.carried", len(result.CarriedForward)),
		attribute.Int("rollover.failed", len(result.Failures)),
	)
	s.metrics.RecordCarryForwards(ctx, len(result.CarriedForward), len(result.Failures))

	logger.WithContext(ctx, s.log).Info("billing period opened",
		zap.String("period_id", period.ID.String()),
		zap.String("code", period.Code),
		zap.Int("carried_forward", len(result.CarriedForward)),
		zap.Int("carry_forward_failures", len(result.Failures)),
	)
	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypePeriod,
		Title:      "Billing period opened",
		Message:    fmt.Sprintf("Billing period %s opened, %d balances carried forward", period.Name, len(result.CarriedForward)),
		TargetType: notificationdomain.TargetPeriod,
		TargetID:   period.ID.String(),
		Metadata: map[string]any{
			"carriedForward": len(result.CarriedForward),
			"failures":       len(result.Failures),
		},
	})
	return result, nil
}

// rollover fans the carry-forwards out over a bounded pool. Results are sorted by
// customer id.
func (s *Service) rollover(ctx context.Context, fromID, toID snowflake.ID) ([]billingdomain.Bill, []domain.CarryForwardFailure) {
	log := logger.WithContext(ctx, s.log)
	carried := []billingdomain.Bill{}
	failures := []domain.CarryForwardFailure{}

	customers, err := s.store.Customers().List(ctx)
	if err != nil {
		log.Error("rollover could not list customers", zap.Error(err))
		return carried, []domain.CarryForwardFailure{{Err: err, Message: err.Error()}}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency())
	for _, customer := range customers {
		customerID := customer.ID
		g.Go(func() error {
			bill, created, err := s.carryForward(ctx, fromID, toID, customerID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Error("carry forward failed",
					zap.String("customer_id", customerID.String()),
					zap.String("from_period_id", fromID.String()),
					zap.String("to_period_id", toID.String()),
					zap.Error(err),
				)
				failures = append(failures, domain.CarryForwardFailure{
					CustomerID: customerID,
					Err:        err,
					Message:    err.Error(),
				})
			case created:
				carried = append(carried, *bill)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(carried, func(i, j int) bool { return carried[i].CustomerID < carried[j].CustomerID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].CustomerID < failures[j].CustomerID })
	return carried, failures
}

// CarryForward retries the rollover of a single customer.
func (s *Service) CarryForward(ctx context.Context, req domain.CarryForwardRequest) (*billingdomain.Bill, error) {
	fromID, err := parseID(req.FromPeriodID)
	if err != nil {
		return nil, err
	}
	toID, err := parseID(req.ToPeriodID)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, domain.ErrSamePeriod
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return nil, billingdomain.ErrInvalidCustomerID
	}

	for _, id := range []snowflake.ID{fromID, toID} {
		if _, err := s.get(ctx, s.store, id); err != nil {
			return nil, err
		}
	}
	customer, err := s.store.Customers().FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, billingdomain.ErrCustomerNotFound
	}

	bill, created, err := s.carryForward(ctx, fromID, toID, customerID)
	if err != nil {
		return nil, err
	}
	if created {
		s.metrics.RecordCarryForwards(ctx, 1, 0)
	}
	return bill, nil
}

// carryForward moves one customer's unpaid balance from fromID into toID in its
// own transaction. An existing bill in toID is returned unchanged with created
// false; a nil bill means the customer owed nothing.
func (s *Service) carryForward(ctx context.Context, fromID, toID, customerID snowflake.ID) (*billingdomain.Bill, bool, error) {
	var (
		out     *billingdomain.Bill
		created bool
	)
	err := s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		source, err := tx.Bills().FindByCustomerAndPeriod(ctx, customerID, fromID)
		if err != nil {
			return storedomain.Wrap(opCarryForward, "load_source_bill", err)
		}
		if source == nil {
			return nil
		}

		existing, err := tx.Bills().FindByCustomerAndPeriod(ctx, customerID, toID)
		if err != nil {
			return storedomain.Wrap(opCarryForward, "load_target_bill", err)
		}
		if existing != nil {
			out = existing
			return nil
		}

		bill, ok := billingdomain.CarryForward(*source, toID)
		if !ok {
			return nil
		}
		now := s.clock.Now()
		bill.ID = s.genID.Generate()
		bill.IssueDate = now
		bill.CreatedAt = now
		bill.UpdatedAt = now
		if days := s.dueInDays(); days > 0 {
			due := now.AddDate(0, 0, days)
			bill.DueDate = &due
		}
		if err := tx.Bills().Insert(ctx, &bill); err != nil {
			return storedomain.Wrap(opCarryForward, "insert_bill", err)
		}
		out = &bill
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (s *Service) concurrency() int {
	if s.billing == nil {
		return defaultRolloverConcurrency
	}
	if n := s.billing.Get().Rollover.Concurrency; n > 0 {
		return n
	}
	return defaultRolloverConcurrency
}

func (s *Service) dueInDays() int {
	if s.billing == nil {
		return 0
	}
	return s.billing.Get().DueInDays
}
