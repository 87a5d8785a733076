// Package storetest holds the behavioral checks every store backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRollback = errors.New("rollback")

// Run executes the contract against stores produced by newStore. Each subtest
// receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) storedomain.Store) {
	t.Run("customers", func(t *testing.T) { testCustomers(t, newStore(t)) })
	t.Run("periods", func(t *testing.T) { testPeriods(t, newStore(t)) })
	t.Run("readings", func(t *testing.T) { testReadings(t, newStore(t)) })
	t.Run("bills", func(t *testing.T) { testBills(t, newStore(t)) })
	t.Run("payments", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
}

var (
	node, _ = snowflake.NewNode(7)
	base    = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func NewCustomer(account string, at time.Time) *customerdomain.Customer {
	return &customerdomain.Customer{
		ID:            node.Generate(),
		Name:          "Customer " + account,
		Address:       "1 Main St",
		Phone:         "555-0100",
		AccountNumber: account,
		MeterNumber:   "M-" + account,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func NewPeriod(name string, start time.Time, active bool) *perioddomain.BillingPeriod {
	return &perioddomain.BillingPeriod{
		ID:        node.Generate(),
		Name:      name,
		Code:      name,
		StartDate: start,
		IsActive:  active,
		CreatedAt: start,
	}
}

func NewBill(customerID, periodID snowflake.ID, total string, at time.Time) *billingdomain.Bill {
	amount := dec(total)
	return &billingdomain.Bill{
		ID:              node.Generate(),
		CustomerID:      customerID,
		PeriodID:        periodID,
		MeterReadingID:  node.Generate(),
		Source:          billingdomain.SourceMetered,
		Consumption:     dec("10"),
		ConsumptionCost: amount,
		SubscriptionFee: decimal.Zero,
		TaxAmount:       decimal.Zero,
		PreviousBalance: decimal.Zero,
		TotalAmount:     amount,
		PaidAmount:      decimal.Zero,
		RemainingAmount: amount,
		IsPaid:          !amount.IsPositive(),
		IssueDate:       at,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func testCustomers(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	repo := s.Customers()

	a := NewCustomer("ACC-1", base)
	b := NewCustomer("ACC-2", base.Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	err := repo.Insert(ctx, NewCustomer("ACC-1", base))
	assert.True(t, storedomain.IsDuplicate(err), "duplicate account number: %v", err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	found, err := repo.FindByAccountNumber(ctx, "ACC-2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, b.ID, found.ID)

	missing, err := repo.FindByID(ctx, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)

	a.AccountNumber = "ACC-9"
	a.Name = "Renamed"
	a.UpdatedAt = base.Add(2 * time.Hour)
	require.NoError(t, repo.Update(ctx, a))
	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	old, err := repo.FindByAccountNumber(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Nil(t, old)

	b.AccountNumber = "ACC-9"
	assert.True(t, storedomain.IsDuplicate(repo.Update(ctx, b)))

	ghost := NewCustomer("ACC-X", base)
	assert.ErrorIs(t, repo.Update(ctx, ghost), customerdomain.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, a.ID))
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), customerdomain.ErrNotFound)
	gone, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func testPeriods(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	repo := s.Periods()

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	jan := NewPeriod("jan", base, true)
	require.NoError(t, repo.Insert(ctx, jan))

	feb := NewPeriod("feb", base.AddDate(0, 1, 0), true)
	assert.Error(t, repo.Insert(ctx, feb), "second active period must be rejected")

	require.NoError(t, repo.DeactivateAll(ctx))
	require.NoError(t, repo.Insert(ctx, feb))

	active, err = repo.FindActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, feb.ID, active.ID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, feb.ID, list[0].ID)
	assert.False(t, list[1].IsActive)

	end := base.AddDate(0, 1, 0)
	stored, err := repo.FindByID(ctx, jan.ID)
	require.NoError(t, err)
	stored.EndDate = &end
	require.NoError(t, repo.Update(ctx, stored))
	stored, err = repo.FindByID(ctx, jan.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EndDate)
	assert.True(t, end.Equal(*stored.EndDate))

	ghost := NewPeriod("ghost", base, false)
	assert.ErrorIs(t, repo.Update(ctx, ghost), perioddomain.ErrNotFound)
}

func testReadings(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	repo := s.Readings()
	customerID, periodA, periodB := node.Generate(), node.Generate(), node.Generate()

	first := &readingdomain.MeterReading{
		ID: node.Generate(), CustomerID: customerID, PeriodID: periodA,
		ReadingDate: base, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, first.SetValues(dec("0"), dec("100")))
	require.NoError(t, repo.Insert(ctx, first))

	dup := *first
	dup.ID = node.Generate()
	assert.True(t, storedomain.IsDuplicate(repo.Insert(ctx, &dup)))

	second := &readingdomain.MeterReading{
		ID: node.Generate(), CustomerID: customerID, PeriodID: periodB,
		ReadingDate: base.AddDate(0, 1, 0), CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, second.SetValues(dec("100"), dec("250.5")))
	require.NoError(t, repo.Insert(ctx, second))

	latest, err := repo.FindLatestByCustomer(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, dec("150.5").Equal(latest.Consumption))

	byPair, err := repo.FindByCustomerAndPeriod(ctx, customerID, periodA)
	require.NoError(t, err)
	require.NotNil(t, byPair)
	assert.Equal(t, first.ID, byPair.ID)

	require.NoError(t, first.SetValues(dec("0"), dec("120")))
	first.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, first))
	updated, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(updated.Consumption))

	list, err := repo.ListByCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	none, err := repo.FindLatestByCustomer(ctx, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testBills(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	repo := s.Bills()
	customerID, periodID := node.Generate(), node.Generate()

	bill := NewBill(customerID, periodID, "125", base)
	require.NoError(t, repo.Insert(ctx, bill))
	assert.Equal(t, int64(1), bill.Version)

	assert.True(t, storedomain.IsDuplicate(repo.Insert(ctx, NewBill(customerID, periodID, "1", base))))

	stale := *bill
	paid, err := billingdomain.ApplyPayment(*bill, dec("50"))
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &paid))
	assert.Equal(t, int64(2), paid.Version)

	again, err := billingdomain.ApplyPayment(stale, dec("100"))
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Update(ctx, &again), billingdomain.ErrConcurrentModification)

	stored, err := repo.FindByID(ctx, bill.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, dec("75").Equal(stored.RemainingAmount))
	assert.True(t, dec("50").Equal(stored.PaidAmount))
	assert.Equal(t, int64(2), stored.Version)
	require.NoError(t, billingdomain.CheckInvariants(*stored))

	other := NewBill(node.Generate(), periodID, "10", base)
	require.NoError(t, repo.Insert(ctx, other))
	byPeriod, err := repo.ListByPeriod(ctx, periodID)
	require.NoError(t, err)
	assert.Len(t, byPeriod, 2)

	byCustomer, err := repo.ListByCustomer(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := repo.FindByCustomerAndPeriod(ctx, customerID, periodID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, bill.ID, found.ID)
}

func testPayments(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	bill := NewBill(node.Generate(), node.Generate(), "100", base)
	require.NoError(t, s.Bills().Insert(ctx, bill))

	repo := s.Payments()
	for i, amount := range []string{"10", "20.5"} {
		p := &paymentdomain.Payment{
			ID:            node.Generate(),
			BillID:        bill.ID,
			CustomerID:    bill.CustomerID,
			Amount:        dec(amount),
			PaymentDate:   base.Add(time.Duration(i) * time.Hour),
			PaymentMethod: paymentdomain.MethodCash,
			CreatedAt:     base,
		}
		require.NoError(t, repo.Insert(ctx, p))
	}

	byBill, err := repo.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, byBill, 2)
	assert.True(t, dec("20.5").Equal(byBill[0].Amount))

	byCustomer, err := repo.ListByCustomer(ctx, bill.CustomerID)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, dec("20.5").Equal(all[0].Amount))

	found, err := repo.FindByID(ctx, byBill[1].ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, paymentdomain.MethodCash, found.PaymentMethod)
}

func testSettings(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	repo := s.Settings()

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	settings := &settingsdomain.SystemSettings{
		KilowattPrice:   dec("0.5"),
		SubscriptionFee: dec("10"),
		TaxRate:         dec("0.15"),
		UpdatedAt:       base,
	}
	require.NoError(t, repo.Save(ctx, settings))

	settings.KilowattPrice = dec("0.65")
	require.NoError(t, repo.Save(ctx, settings))

	got, err = repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, dec("0.65").Equal(got.KilowattPrice))
	assert.True(t, dec("0.15").Equal(got.TaxRate))
}

func testNotifications(t *testing.T, s storedomain.Store) {
	ctx := context.Background()
	repo := s.Notifications()

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		n := &notificationdomain.Notification{
			ID:         node.Generate(),
			EventID:    "01HZZZZZZZZZZZZZZZZZZZZZZ" + string(rune('A'+i)),
			Title:      "Customer added",
			Message:    "A customer was added",
			Type:       notificationdomain.TypeCreate,
			TargetType: notificationdomain.TargetCustomer,
			Metadata:   map[string]any{"index": i},
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Insert(ctx, n))
		ids = append(ids, n.ID)
	}

	list, err := repo.List(ctx, notificationdomain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)

	require.NoError(t, repo.MarkRead(ctx, ids[0]))
	assert.ErrorIs(t, repo.MarkRead(ctx, node.Generate()), notificationdomain.ErrNotFound)

	unread, err := repo.List(ctx, notificationdomain.ListFilter{UnreadOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, ids[2], unread[0].ID)

	n, err := repo.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = repo.List(ctx, notificationdomain.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func testTransactions(t *testing.T, s storedomain.Store) {
	ctx := context.Background()

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	rolled := NewCustomer("TX-1", base)
	err = s.WithinTx(ctx, func(tx storedomain.Store) error {
		if err := tx.Customers().Insert(ctx, rolled); err != nil {
			return err
		}
		seen, err := tx.Customers().FindByID(ctx, rolled.ID)
		if err != nil {
			return err
		}
		if seen == nil {
			return errors.New("write not visible inside transaction")
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	got, err := s.Customers().FindByID(ctx, rolled.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back insert must not be visible")

	committed := NewCustomer("TX-2", base)
	period := NewPeriod("tx", base, true)
	err = s.WithinTx(ctx, func(tx storedomain.Store) error {
		if err := tx.Customers().Insert(ctx, committed); err != nil {
			return err
		}
		return tx.Periods().Insert(ctx, period)
	})
	require.NoError(t, err)

	got, err = s.Customers().FindByID(ctx, committed.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	active, err := s.Periods().FindActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)

	// A failed bill update rolls back the payment written before it.
	bill := NewBill(committed.ID, period.ID, "50", base)
	require.NoError(t, s.Bills().Insert(ctx, bill))
	err = s.WithinTx(ctx, func(tx storedomain.Store) error {
		p := &paymentdomain.Payment{
			ID: node.Generate(), BillID: bill.ID, CustomerID: committed.ID,
			Amount: dec("5"), PaymentDate: base, PaymentMethod: paymentdomain.MethodCard, CreatedAt: base,
		}
		if err := tx.Payments().Insert(ctx, p); err != nil {
			return err
		}
		stale := *bill
		stale.Version = 99
		return tx.Bills().Update(ctx, &stale)
	})
	require.ErrorIs(t, err, billingdomain.ErrConcurrentModification)
	payments, err := s.Payments().ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}
