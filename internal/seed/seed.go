package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Store     storedomain.Store
	Log       *zap.Logger
	Clock     clock.Clock
	Customers customerdomain.Service
	Periods   perioddomain.Service
	Settings  settingsdomain.Service
	Billing   billingdomain.Service
	Payments  paymentdomain.Service
	Emitter   notificationdomain.Emitter `optional:"true"`
}

type Seeder struct {
	store     storedomain.Store
	log       *zap.Logger
	clock     clock.Clock
	customers customerdomain.Service
	periods   perioddomain.Service
	settings  settingsdomain.Service
	billing   billingdomain.Service
	payments  paymentdomain.Service
	emitter   notificationdomain.Emitter
}

func New(p Params) *Seeder {
	emitter := p.Emitter
	if emitter == nil {
		emitter = notificationdomain.EmitterFunc(func(context.Context, notificationdomain.Event) {})
	}
	return &Seeder{
		store:     p.Store,
		log:       p.Log.Named("seed"),
		clock:     p.Clock,
		customers: p.Customers,
		periods:   p.Periods,
		settings:  p.Settings,
		billing:   p.Billing,
		payments:  p.Payments,
		emitter:   emitter,
	}
}

type demoCustomer struct {
	request  customerdomain.CreateCustomerRequest
	previous string
	current  string
	payment  string
}

var demoCustomers = []demoCustomer{
	{
		request: customerdomain.CreateCustomerRequest{
			Name: "Amina Haddad", Address: "12 Cedar Street", Phone: "555-0101",
			AccountNumber: "ACC-1001", MeterNumber: "MTR-5001", ContractType: "residential",
		},
		previous: "1200", current: "1450", payment: "50",
	},
	{
		request: customerdomain.CreateCustomerRequest{
			Name: "Jonas Berg", Address: "4 Harbor Road", Phone: "555-0102",
			AccountNumber: "ACC-1002", MeterNumber: "MTR-5002", ContractType: "residential",
		},
		previous: "830", current: "910",
	},
	{
		request: customerdomain.CreateCustomerRequest{
			Name: "Corner Bakery", Address: "77 Market Square", Phone: "555-0103",
			AccountNumber: "ACC-2001", MeterNumber: "MTR-7001", ContractType: "commercial",
			Notes: "Meter inside the back office",
		},
		previous: "15400", current: "16320", payment: "full",
	},
}

// EnsureDemoData loads demo settings, customers, an active period, readings,
// bills and a few payments. It does nothing unless the store is empty and
// reports whether anything was written.
func (s *Seeder) EnsureDemoData(ctx context.Context) (bool, error) {
	empty, err := s.store.IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("check store: %w", err)
	}
	if !empty {
		s.log.Info("store already has data, skipping seed")
		return false, nil
	}

	if _, err := s.settings.Update(ctx, settingsdomain.UpdateSettingsRequest{
		KilowattPrice:   decPtr("0.5"),
		SubscriptionFee: decPtr("10"),
		TaxRate:         decPtr("0.15"),
	}); err != nil {
		return false, fmt.Errorf("seed settings: %w", err)
	}

	now := s.clock.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	opened, err := s.periods.OpenNewPeriod(ctx, perioddomain.OpenPeriodRequest{
		Name:      start.Format("January 2006"),
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return false, fmt.Errorf("seed period: %w", err)
	}

	for _, demo := range demoCustomers {
		customer, err := s.customers.Create(ctx, demo.request)
		if err != nil {
			return false, fmt.Errorf("seed customer %s: %w", demo.request.AccountNumber, err)
		}
		recorded, err := s.billing.RecordReading(ctx, billingdomain.RecordReadingRequest{
			CustomerID:      customer.ID.String(),
			PeriodID:        opened.Period.ID.String(),
			PreviousReading: decPtr(demo.previous),
			CurrentReading:  decimal.RequireFromString(demo.current),
		})
		if err != nil {
			return false, fmt.Errorf("seed reading %s: %w", demo.request.AccountNumber, err)
		}

		amount := recorded.Bill.RemainingAmount
		switch demo.payment {
		case "":
			continue
		case "full":
		default:
			amount = decimal.RequireFromString(demo.payment)
		}
		if _, err := s.payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
			BillID:        recorded.Bill.ID.String(),
			Amount:        amount,
			PaymentMethod: string(paymentdomain.MethodCash),
			Notes:         "demo payment",
		}); err != nil {
			return false, fmt.Errorf("seed payment %s: %w", demo.request.AccountNumber, err)
		}
	}

	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypeOther,
		Title:      "Demo data loaded",
		Message:    fmt.Sprintf("%d demo customers with readings and bills for %s", len(demoCustomers), opened.Period.Name),
		TargetType: notificationdomain.TargetPeriod,
		TargetID:   opened.Period.ID.String(),
	})
	s.log.Info("demo data seeded",
		zap.Int("customers", len(demoCustomers)),
		zap.String("period_id", opened.Period.ID.String()),
	)
	return true, nil
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
