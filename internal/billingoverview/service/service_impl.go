package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/billingoverview/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"github.com/smallbiznis/meterbill/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("meterbill/billingoverview")

type Params struct {
	fx.In

	Store storedomain.Store
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	store storedomain.Store
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("billingoverview.service"),
		clock: p.Clock,
	}
}

func (s *Service) PeriodSummary(ctx context.Context, periodID string) (domain.PeriodSummary, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(periodID))
	if err != nil || id == 0 {
		return domain.PeriodSummary{}, perioddomain.ErrInvalidID
	}

	var summary domain.PeriodSummary
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		period, err := tx.Periods().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if period == nil {
			return perioddomain.ErrNotFound
		}
		bills, err := tx.Bills().ListByPeriod(ctx, id)
		if err != nil {
			return err
		}
		summary = summarize(*period, bills)
		return nil
	})
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	return summary, nil
}

// Overview reads every customer, period, bill and payment in one transaction
// so the totals agree with each other.
func (s *Service) Overview(ctx context.Context, req domain.OverviewRequest) (overview domain.Overview, err error) {
	top, err := listSize(req.TopConsumers, domain.DefaultTopConsumers, domain.ErrInvalidTop)
	if err != nil {
		return domain.Overview{}, err
	}
	recent, err := listSize(req.RecentPayments, domain.DefaultRecentPayments, domain.ErrInvalidRecent)
	if err != nil {
		return domain.Overview{}, err
	}

	ctx, span := tracer.Start(ctx, "billingoverview.overview")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "overview failed")
		}
		span.End()
	}()

	var (
		customers []customerdomain.Customer
		periods   []perioddomain.BillingPeriod
		bills     []billingdomain.Bill
		payments  []paymentdomain.Payment
	)
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		var err error
		if customers, err = tx.Customers().List(ctx); err != nil {
			return err
		}
		if periods, err = tx.Periods().List(ctx); err != nil {
			return err
		}
		if bills, err = tx.Bills().List(ctx); err != nil {
			return err
		}
		payments, err = tx.Payments().List(ctx)
		return err
	})
	if err != nil {
		return domain.Overview{}, err
	}

	overview = build(customers, periods, bills, payments, top, recent)
	overview.GeneratedAt = s.clock.Now()

	span.SetAttributes(
		attribute.Int("meterbill.customers", overview.CustomerCount),
		attribute.Int("meterbill.bills", overview.BillCount),
	)
	logger.WithContext(ctx, s.log).Debug("overview computed",
		zap.Int("customers", overview.CustomerCount),
		zap.Int("bills", overview.BillCount),
		zap.Int("periods", len(periods)),
		zap.Int("payments", len(payments)),
	)
	return overview, nil
}

func listSize(requested, fallback int, invalid error) (int, error) {
	switch {
	case requested < 0 || requested > domain.MaxListSize:
		return 0, invalid
	case requested == 0:
		return fallback, nil
	default:
		return requested, nil
	}
}

func summarize(period perioddomain.BillingPeriod, bills []billingdomain.Bill) domain.PeriodSummary {
	summary := domain.PeriodSummary{
		Period:            period,
		TotalAmount:       decimal.Zero,
		PaidAmount:        decimal.Zero,
		OutstandingAmount: decimal.Zero,
	}
	for _, bill := range bills {
		summary.BillCount++
		summary.TotalAmount = summary.TotalAmount.Add(bill.TotalAmount)
		summary.PaidAmount = summary.PaidAmount.Add(bill.PaidAmount)
	}
	summary.OutstandingAmount = summary.TotalAmount.Sub(summary.PaidAmount)
	return summary
}

func build(
	customers []customerdomain.Customer,
	periods []perioddomain.BillingPeriod,
	bills []billingdomain.Bill,
	payments []paymentdomain.Payment,
	top, recent int,
) domain.Overview {
	out := domain.Overview{
		CustomerCount:    len(customers),
		BillCount:        len(bills),
		TotalBilled:      decimal.Zero,
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
		Periods:          make([]domain.PeriodSummary, 0, len(periods)),
	}

	byID := make(map[snowflake.ID]customerdomain.Customer, len(customers))
	byType := map[string]*domain.ContractTypeTotal{}
	typeTotal := func(contractType string) *domain.ContractTypeTotal {
		if contractType == "" {
			contractType = domain.DefaultContractType
		}
		t, ok := byType[contractType]
		if !ok {
			t = &domain.ContractTypeTotal{ContractType: contractType, Billed: decimal.Zero}
			byType[contractType] = t
		}
		return t
	}
	for _, c := range customers {
		byID[c.ID] = c
		typeTotal(c.ContractType).Customers++
	}

	starts := make(map[snowflake.ID]time.Time, len(periods))
	for _, p := range periods {
		starts[p.ID] = p.StartDate
	}

	latest := map[snowflake.ID]billingdomain.Bill{}
	consumption := map[snowflake.ID]decimal.Decimal{}
	byPeriod := map[snowflake.ID][]billingdomain.Bill{}
	for _, bill := range bills {
		byPeriod[bill.PeriodID] = append(byPeriod[bill.PeriodID], bill)
		charges := bill.TotalAmount.Sub(bill.PreviousBalance)
		out.TotalBilled = out.TotalBilled.Add(charges)
		out.TotalPaid = out.TotalPaid.Add(bill.PaidAmount)

		customer, known := byID[bill.CustomerID]
		t := typeTotal(customer.ContractType)
		t.Billed = t.Billed.Add(charges)
		if known {
			consumption[bill.CustomerID] = consumption[bill.CustomerID].Add(bill.Consumption)
		}

		if cur, ok := latest[bill.CustomerID]; !ok || newer(bill, cur, starts) {
			latest[bill.CustomerID] = bill
		}
	}
	for _, bill := range latest {
		out.TotalOutstanding = out.TotalOutstanding.Add(bill.RemainingAmount)
	}

	out.BilledByContractType = make([]domain.ContractTypeTotal, 0, len(byType))
	for _, t := range byType {
		out.BilledByContractType = append(out.BilledByContractType, *t)
	}
	sort.Slice(out.BilledByContractType, func(i, j int) bool {
		a, b := out.BilledByContractType[i], out.BilledByContractType[j]
		if !a.Billed.Equal(b.Billed) {
			return a.Billed.GreaterThan(b.Billed)
		}
		return a.ContractType < b.ContractType
	})

	out.TopConsumers = make([]domain.ConsumerTotal, 0, len(consumption))
	for id, kwh := range consumption {
		out.TopConsumers = append(out.TopConsumers, domain.ConsumerTotal{
			CustomerID:  id,
			Name:        byID[id].Name,
			Consumption: kwh,
		})
	}
	sort.Slice(out.TopConsumers, func(i, j int) bool {
		a, b := out.TopConsumers[i], out.TopConsumers[j]
		if !a.Consumption.Equal(b.Consumption) {
			return a.Consumption.GreaterThan(b.Consumption)
		}
		return a.CustomerID < b.CustomerID
	})
	if len(out.TopConsumers) > top {
		out.TopConsumers = out.TopConsumers[:top]
	}

	// Payments arrive newest first.
	out.RecentPayments = append([]paymentdomain.Payment{}, payments[:min(recent, len(payments))]...)

	for _, p := range periods {
		summary := summarize(p, byPeriod[p.ID])
		out.Periods = append(out.Periods, summary)
		if p.IsActive {
			active := summary
			out.ActivePeriod = &active
		}
	}
	return out
}

// newer orders a customer's bills by period start, then issue date.
func newer(a, b billingdomain.Bill, starts map[snowflake.ID]time.Time) bool {
	sa, sb := starts[a.PeriodID], starts[b.PeriodID]
	if !sa.Equal(sb) {
		return sa.After(sb)
	}
	return a.IssueDate.After(b.IssueDate)
}
