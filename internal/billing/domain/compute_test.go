package domain

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultTariff() Tariff {
	return Tariff{KilowattPrice: dec("0.5"), SubscriptionFee: dec("10"), TaxRate: dec("0.15")}
}

func reading(prev, cur string) readingdomain.MeterReading {
	return readingdomain.MeterReading{
		ID:              snowflake.ID(11),
		CustomerID:      snowflake.ID(1),
		PeriodID:        snowflake.ID(2),
		PreviousReading: dec(prev),
		CurrentReading:  dec(cur),
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestComputeExampleScenario(t *testing.T) {
	bill, err := Compute(reading("100", "300"), defaultTariff(), decimal.Zero)
	require.NoError(t, err)

	assertAmount(t, "200", bill.Consumption, "consumption")
	assertAmount(t, "100", bill.ConsumptionCost, "consumptionCost")
	assertAmount(t, "10", bill.SubscriptionFee, "subscriptionFee")
	assertAmount(t, "15", bill.TaxAmount, "taxAmount")
	assertAmount(t, "125", bill.TotalAmount, "totalAmount")
	assertAmount(t, "125", bill.RemainingAmount, "remainingAmount")
	assertAmount(t, "0", bill.PaidAmount, "paidAmount")
	assert.False(t, bill.IsPaid)
	assert.Equal(t, SourceMetered, bill.Source)
	assert.Equal(t, snowflake.ID(11), bill.MeterReadingID)
	require.NoError(t, CheckInvariants(bill))

	bill, err = ApplyPayment(bill, dec("50"))
	require.NoError(t, err)
	assertAmount(t, "75", bill.RemainingAmount, "remaining after 50")
	assert.False(t, bill.IsPaid)

	bill, err = ApplyPayment(bill, dec("75"))
	require.NoError(t, err)
	assertAmount(t, "0", bill.RemainingAmount, "remaining after 75")
	assertAmount(t, "125", bill.PaidAmount, "paid")
	assert.True(t, bill.IsPaid)
	require.NoError(t, CheckInvariants(bill))
}

func TestComputeIncludesPreviousBalance(t *testing.T) {
	bill, err := Compute(reading("0", "10"), defaultTariff(), dec("30"))
	require.NoError(t, err)
	assertAmount(t, "30", bill.PreviousBalance, "previousBalance")
	// 5 + 10 + 0.75 + 30
	assertAmount(t, "45.75", bill.TotalAmount, "totalAmount")
	require.NoError(t, CheckInvariants(bill))
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	_, err := Compute(reading("300", "100"), defaultTariff(), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidReading)

	bad := defaultTariff()
	bad.KilowattPrice = decimal.Zero
	_, err = Compute(reading("0", "1"), bad, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidTariff)

	bad = defaultTariff()
	bad.TaxRate = dec("1.5")
	_, err = Compute(reading("0", "1"), bad, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidTariff)
}

func TestComputeZeroTotalIsPaid(t *testing.T) {
	free := Tariff{KilowattPrice: dec("0.5"), SubscriptionFee: decimal.Zero, TaxRate: decimal.Zero}
	bill, err := Compute(reading("40", "40"), free, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, bill.IsPaid)
	assert.True(t, bill.TotalAmount.IsZero())
}

func TestComputeRoundsToCents(t *testing.T) {
	tariff := Tariff{KilowattPrice: dec("0.137"), SubscriptionFee: dec("9.99"), TaxRate: dec("0.075")}
	bill, err := Compute(reading("0", "123.45"), tariff, dec("1.005"))
	require.NoError(t, err)

	assertAmount(t, "16.91", bill.ConsumptionCost, "consumptionCost")
	assertAmount(t, "1.27", bill.TaxAmount, "taxAmount")
	assertAmount(t, "1.01", bill.PreviousBalance, "previousBalance")
	assertAmount(t, "29.18", bill.TotalAmount, "totalAmount")
	require.NoError(t, CheckInvariants(bill))
}

func TestApplyPaymentRejections(t *testing.T) {
	bill, err := Compute(reading("100", "300"), defaultTariff(), decimal.Zero)
	require.NoError(t, err)
	before := bill

	for _, amount := range []string{"0", "-5"} {
		got, err := ApplyPayment(bill, dec(amount))
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
		assert.Equal(t, before, got)
	}

	for _, amount := range []string{"0.001", "124.995", "50.0001"} {
		got, err := ApplyPayment(bill, dec(amount))
		assert.ErrorIs(t, err, ErrAmountPrecision, amount)
		assert.Equal(t, before, got)
	}

	got, err := ApplyPayment(bill, dec("125.01"))
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Equal(t, before, got)
	assert.Equal(t, before, bill)
}

func TestApplyPaymentDoesNotMutateInput(t *testing.T) {
	bill, err := Compute(reading("100", "300"), defaultTariff(), decimal.Zero)
	require.NoError(t, err)

	paid, err := ApplyPayment(bill, dec("20"))
	require.NoError(t, err)
	assertAmount(t, "0", bill.PaidAmount, "original paid")
	assertAmount(t, "20", paid.PaidAmount, "new paid")
}

func TestRecomputePreservesPaidAndBalance(t *testing.T) {
	bill, err := Compute(reading("100", "300"), defaultTariff(), dec("30"))
	require.NoError(t, err)
	bill, err = ApplyPayment(bill, dec("100"))
	require.NoError(t, err)

	updated := reading("100", "200")
	updated.ID = snowflake.ID(99)
	re, err := Recompute(bill, updated, defaultTariff())
	require.NoError(t, err)

	assertAmount(t, "30", re.PreviousBalance, "previousBalance")
	assertAmount(t, "100", re.PaidAmount, "paidAmount")
	// 50 + 10 + 7.5 + 30
	assertAmount(t, "97.5", re.TotalAmount, "totalAmount")
	assertAmount(t, "-2.5", re.RemainingAmount, "remainingAmount")
	assert.True(t, re.IsPaid)
	assert.Equal(t, snowflake.ID(99), re.MeterReadingID)
	require.NoError(t, CheckInvariants(re))

	_, err = Recompute(bill, reading("300", "200"), defaultTariff())
	assert.True(t, errors.Is(err, ErrInvalidReading))
}

func TestRecomputeTurnsCarryForwardIntoMetered(t *testing.T) {
	source, err := Compute(reading("0", "60"), defaultTariff(), decimal.Zero)
	require.NoError(t, err)
	carried, ok := CarryForward(source, snowflake.ID(3))
	require.True(t, ok)

	re, err := Recompute(carried, reading("60", "100"), defaultTariff())
	require.NoError(t, err)
	assert.Equal(t, SourceMetered, re.Source)
	assertAmount(t, carried.PreviousBalance.String(), re.PreviousBalance, "previousBalance")
	require.NoError(t, CheckInvariants(re))
}

func TestCarryForward(t *testing.T) {
	source, err := Compute(reading("100", "300"), defaultTariff(), decimal.Zero)
	require.NoError(t, err)
	source, err = ApplyPayment(source, dec("95"))
	require.NoError(t, err)

	carried, ok := CarryForward(source, snowflake.ID(7))
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(7), carried.PeriodID)
	assert.Equal(t, source.CustomerID, carried.CustomerID)
	assert.Equal(t, source.MeterReadingID, carried.MeterReadingID)
	assert.Equal(t, SourceCarryForward, carried.Source)
	assertAmount(t, "30", carried.PreviousBalance, "previousBalance")
	assertAmount(t, "30", carried.TotalAmount, "totalAmount")
	assertAmount(t, "30", carried.RemainingAmount, "remainingAmount")
	assertAmount(t, "0", carried.PaidAmount, "paidAmount")
	assertAmount(t, "0", carried.Consumption, "consumption")
	assert.False(t, carried.IsPaid)
	require.NoError(t, CheckInvariants(carried))

	settled, err := ApplyPayment(source, dec("30"))
	require.NoError(t, err)
	_, ok = CarryForward(settled, snowflake.ID(7))
	assert.False(t, ok)
}

func TestAmountIdentitiesHoldForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		prev := decimal.New(rng.Int63n(1_000_000), -2)
		cur := prev.Add(decimal.New(rng.Int63n(500_000), -2))
		tariff := Tariff{
			KilowattPrice:   decimal.New(rng.Int63n(10_000)+1, -4),
			SubscriptionFee: decimal.New(rng.Int63n(5_000), -2),
			TaxRate:         decimal.New(rng.Int63n(101), -2),
		}
		balance := decimal.New(rng.Int63n(100_000), -2)

		bill, err := Compute(reading(prev.String(), cur.String()), tariff, balance)
		require.NoError(t, err)
		require.NoError(t, CheckInvariants(bill))
		assert.True(t, bill.Consumption.Equal(cur.Sub(prev)))
		assert.False(t, bill.Consumption.IsNegative())

		for bill.RemainingAmount.IsPositive() {
			remaining := bill.RemainingAmount
			amount := decimal.New(rng.Int63n(remaining.Shift(2).IntPart())+1, -2)
			next, err := ApplyPayment(bill, amount)
			require.NoError(t, err)
			require.NoError(t, CheckInvariants(next))
			assert.True(t, remaining.Sub(amount).Equal(next.RemainingAmount))
			bill = next
		}
		assert.True(t, bill.IsPaid)
	}
}

func TestPaidAmountEqualsAcceptedPayments(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		bill, err := Compute(reading("0", decimal.New(rng.Int63n(100_000)+1, -2).String()), defaultTariff(), decimal.Zero)
		require.NoError(t, err)

		accepted := decimal.Zero
		for attempts := 0; bill.RemainingAmount.IsPositive() && attempts < 100; attempts++ {
			// Thousandths, so roughly nine in ten candidates are finer than a cent.
			limit := bill.RemainingAmount.Shift(3).IntPart()
			amount := decimal.New(rng.Int63n(limit)+1, -3)

			next, err := ApplyPayment(bill, amount)
			if !amount.Equal(amount.Round(MoneyPlaces)) {
				require.ErrorIs(t, err, ErrAmountPrecision)
				require.Equal(t, bill, next)
				continue
			}
			require.NoError(t, err)
			accepted = accepted.Add(amount)
			bill = next

			require.NoError(t, CheckInvariants(bill))
			require.True(t, accepted.Equal(bill.PaidAmount), "accepted %s, paid %s", accepted, bill.PaidAmount)
			require.True(t, bill.RemainingAmount.Equal(roundMoney(bill.RemainingAmount)))
		}

		if bill.RemainingAmount.IsPositive() {
			bill, err = ApplyPayment(bill, bill.RemainingAmount)
			require.NoError(t, err)
		}
		assert.True(t, bill.IsPaid)
		assert.True(t, bill.RemainingAmount.IsZero())
		assert.True(t, bill.TotalAmount.Equal(bill.PaidAmount))
	}
}
