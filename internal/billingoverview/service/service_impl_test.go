package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/billingoverview/domain"
	"github.com/smallbiznis/meterbill/internal/billingoverview/service"
	"github.com/smallbiznis/meterbill/internal/clock"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/smallbiznis/meterbill/internal/store/storetest"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	jan = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc   domain.Service
	store storedomain.Store
	node  *snowflake.Node
	clock *clock.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		store: testutil.NewStore(t),
		node:  testutil.NewNode(t),
		clock: testutil.NewClock(),
	}
	f.svc = service.NewService(service.Params{
		Store: f.store,
		Log:   zap.NewNop(),
		Clock: f.clock,
	})
	return f
}

func (f fixture) customer(t *testing.T, account, name, contractType string) customerdomain.Customer {
	t.Helper()
	c := storetest.NewCustomer(account, f.clock.Now())
	c.ID = f.node.Generate()
	c.Name = name
	c.ContractType = contractType
	require.NoError(t, f.store.Customers().Insert(context.Background(), c))
	return *c
}

func (f fixture) period(t *testing.T, name string, start time.Time, active bool) perioddomain.BillingPeriod {
	t.Helper()
	p := storetest.NewPeriod(name, start, active)
	p.ID = f.node.Generate()
	require.NoError(t, f.store.Periods().Insert(context.Background(), p))
	return *p
}

func (f fixture) insertBill(t *testing.T, b *billingdomain.Bill) billingdomain.Bill {
	t.Helper()
	require.NoError(t, billingdomain.CheckInvariants(*b))
	require.NoError(t, f.store.Bills().Insert(context.Background(), b))
	return *b
}

// pay stores a paid-down bill together with its payment record.
func (f fixture) pay(t *testing.T, bill billingdomain.Bill, amount string, at time.Time) billingdomain.Bill {
	t.Helper()
	ctx := context.Background()
	paid, err := billingdomain.ApplyPayment(bill, dec(amount))
	require.NoError(t, err)
	require.NoError(t, f.store.Bills().Update(ctx, &paid))
	require.NoError(t, f.store.Payments().Insert(ctx, &paymentdomain.Payment{
		ID:            f.node.Generate(),
		BillID:        bill.ID,
		CustomerID:    bill.CustomerID,
		Amount:        dec(amount),
		PaymentDate:   at,
		PaymentMethod: paymentdomain.MethodCash,
		CreatedAt:     at,
	}))
	return paid
}

type ledger struct {
	alice, bob, carol customerdomain.Customer
	jan, feb          perioddomain.BillingPeriod
}

// seed builds two periods: alice leaves 60 unpaid in January and it is carried
// into her February bill; bob pays his January bill in full.
func (f fixture) seed(t *testing.T) ledger {
	t.Helper()
	l := ledger{
		alice: f.customer(t, "ACC-1", "Alice", "commercial"),
		bob:   f.customer(t, "ACC-2", "Bob", ""),
		carol: f.customer(t, "ACC-3", "Carol", "industrial"),
		jan:   f.period(t, "January", jan, false),
		feb:   f.period(t, "February", feb, true),
	}

	aliceJan := f.insertBill(t, storetest.NewBill(l.alice.ID, l.jan.ID, "100", jan.Add(24*time.Hour)))
	f.pay(t, aliceJan, "40", jan.Add(5*24*time.Hour))

	bobJan := f.insertBill(t, storetest.NewBill(l.bob.ID, l.jan.ID, "30", jan.Add(24*time.Hour)))
	f.pay(t, bobJan, "30", jan.Add(10*24*time.Hour))

	aliceFeb := storetest.NewBill(l.alice.ID, l.feb.ID, "50", feb.Add(24*time.Hour))
	aliceFeb.Consumption = dec("20")
	aliceFeb.PreviousBalance = dec("60")
	aliceFeb.TotalAmount = dec("110")
	aliceFeb.RemainingAmount = dec("110")
	f.insertBill(t, aliceFeb)
	return l
}

func TestPeriodSummary(t *testing.T) {
	f := setup(t)
	l := f.seed(t)
	ctx := context.Background()

	summary, err := f.svc.PeriodSummary(ctx, l.jan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, l.jan.ID, summary.Period.ID)
	assert.Equal(t, 2, summary.BillCount)
	assert.True(t, dec("130").Equal(summary.TotalAmount), summary.TotalAmount.String())
	assert.True(t, dec("70").Equal(summary.PaidAmount), summary.PaidAmount.String())
	assert.True(t, dec("60").Equal(summary.OutstandingAmount), summary.OutstandingAmount.String())

	empty := f.period(t, "March", feb.AddDate(0, 1, 0), false)
	summary, err = f.svc.PeriodSummary(ctx, empty.ID.String())
	require.NoError(t, err)
	assert.Zero(t, summary.BillCount)
	assert.True(t, summary.TotalAmount.IsZero())
	assert.True(t, summary.OutstandingAmount.IsZero())
}

func TestPeriodSummaryRejectsUnknownPeriods(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.PeriodSummary(ctx, "not-an-id")
	assert.ErrorIs(t, err, perioddomain.ErrInvalidID)

	_, err = f.svc.PeriodSummary(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, perioddomain.ErrNotFound)
}

func TestOverviewTotals(t *testing.T) {
	f := setup(t)
	l := f.seed(t)

	overview, err := f.svc.Overview(context.Background(), domain.OverviewRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, overview.CustomerCount)
	assert.Equal(t, 3, overview.BillCount)
	assert.True(t, dec("180").Equal(overview.TotalBilled), "carried balance billed twice: %s", overview.TotalBilled)
	assert.True(t, dec("70").Equal(overview.TotalPaid), overview.TotalPaid.String())
	assert.True(t, dec("110").Equal(overview.TotalOutstanding), overview.TotalOutstanding.String())
	assert.True(t, overview.TotalBilled.Sub(overview.TotalPaid).Equal(overview.TotalOutstanding))
	assert.Equal(t, f.clock.Now(), overview.GeneratedAt)

	require.Len(t, overview.BilledByContractType, 3)
	assert.Equal(t, "commercial", overview.BilledByContractType[0].ContractType)
	assert.True(t, dec("150").Equal(overview.BilledByContractType[0].Billed))
	assert.Equal(t, domain.DefaultContractType, overview.BilledByContractType[1].ContractType)
	assert.True(t, dec("30").Equal(overview.BilledByContractType[1].Billed))
	assert.Equal(t, "industrial", overview.BilledByContractType[2].ContractType)
	assert.True(t, overview.BilledByContractType[2].Billed.IsZero())
	assert.Equal(t, 1, overview.BilledByContractType[2].Customers)

	require.Len(t, overview.TopConsumers, 2)
	assert.Equal(t, l.alice.ID, overview.TopConsumers[0].CustomerID)
	assert.Equal(t, "Alice", overview.TopConsumers[0].Name)
	assert.True(t, dec("30").Equal(overview.TopConsumers[0].Consumption))
	assert.Equal(t, l.bob.ID, overview.TopConsumers[1].CustomerID)

	require.Len(t, overview.RecentPayments, 2)
	assert.Equal(t, l.bob.ID, overview.RecentPayments[0].CustomerID)

	require.Len(t, overview.Periods, 2)
	assert.Equal(t, l.feb.ID, overview.Periods[0].Period.ID)
	assert.Equal(t, l.jan.ID, overview.Periods[1].Period.ID)
	require.NotNil(t, overview.ActivePeriod)
	assert.Equal(t, l.feb.ID, overview.ActivePeriod.Period.ID)
	assert.Equal(t, 1, overview.ActivePeriod.BillCount)
	assert.True(t, dec("110").Equal(overview.ActivePeriod.OutstandingAmount))
}

func TestOverviewLimitsRankedLists(t *testing.T) {
	f := setup(t)
	l := f.seed(t)

	overview, err := f.svc.Overview(context.Background(), domain.OverviewRequest{TopConsumers: 1, RecentPayments: 1})
	require.NoError(t, err)
	require.Len(t, overview.TopConsumers, 1)
	assert.Equal(t, l.alice.ID, overview.TopConsumers[0].CustomerID)
	require.Len(t, overview.RecentPayments, 1)
	assert.True(t, dec("30").Equal(overview.RecentPayments[0].Amount))

	for _, req := range []domain.OverviewRequest{
		{TopConsumers: -1},
		{TopConsumers: domain.MaxListSize + 1},
	} {
		_, err := f.svc.Overview(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrInvalidTop)
	}
	_, err = f.svc.Overview(context.Background(), domain.OverviewRequest{RecentPayments: -2})
	assert.ErrorIs(t, err, domain.ErrInvalidRecent)
}

func TestOverviewOfEmptyStore(t *testing.T) {
	f := setup(t)

	overview, err := f.svc.Overview(context.Background(), domain.OverviewRequest{})
	require.NoError(t, err)
	assert.Zero(t, overview.CustomerCount)
	assert.True(t, overview.TotalBilled.IsZero())
	assert.True(t, overview.TotalOutstanding.IsZero())
	assert.NotNil(t, overview.BilledByContractType)
	assert.NotNil(t, overview.TopConsumers)
	assert.NotNil(t, overview.RecentPayments)
	assert.NotNil(t, overview.Periods)
	assert.Nil(t, overview.ActivePeriod)
}
