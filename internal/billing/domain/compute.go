package domain

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
)

// MoneyPlaces is the precision money amounts are rounded to.
const MoneyPlaces = 2

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ValidatePaymentAmount accepts positive amounts expressed in whole cents.
func ValidatePaymentAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if !amount.Equal(roundMoney(amount)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrAmountPrecision, amount, MoneyPlaces)
	}
	return nil
}

// Compute derives a fresh metered bill from reading. Identity, dates and version
// are left for the caller to assign.
func Compute(reading readingdomain.MeterReading, tariff Tariff, previousBalance decimal.Decimal) (Bill, error) {
	if err := tariff.Validate(); err != nil {
		return Bill{}, err
	}
	consumption, err := readingdomain.NewConsumption(reading.PreviousReading, reading.CurrentReading)
	if err != nil {
		return Bill{}, err
	}

	bill := Bill{
		CustomerID:      reading.CustomerID,
		PeriodID:        reading.PeriodID,
		MeterReadingID:  reading.ID,
		Source:          SourceMetered,
		PreviousBalance: roundMoney(previousBalance),
		PaidAmount:      decimal.Zero,
	}
	bill.price(consumption, tariff)
	bill.RemainingAmount = bill.TotalAmount
	bill.IsPaid = !bill.RemainingAmount.IsPositive()
	return bill, nil
}

// Recompute re-derives bill from an updated reading. The carried balance and the
// amount already paid are preserved.
func Recompute(bill Bill, reading readingdomain.MeterReading, tariff Tariff) (Bill, error) {
	if err := tariff.Validate(); err != nil {
		return Bill{}, err
	}
	consumption, err := readingdomain.NewConsumption(reading.PreviousReading, reading.CurrentReading)
	if err != nil {
		return Bill{}, err
	}

	out := bill
	out.MeterReadingID = reading.ID
	out.Source = SourceMetered
	out.price(consumption, tariff)
	out.settle()
	return out, nil
}

// ApplyPayment returns a copy of bill with amount applied. bill is never mutated.
func ApplyPayment(bill Bill, amount decimal.Decimal) (Bill, error) {
	if err := ValidatePaymentAmount(amount); err != nil {
		return bill, err
	}
	if amount.GreaterThan(bill.RemainingAmount) {
		return bill, fmt.Errorf("%w: amount %s exceeds remaining %s", ErrOverpayment, amount, bill.RemainingAmount)
	}

	out := bill
	out.PaidAmount = bill.PaidAmount.Add(amount)
	out.settle()
	return out, nil
}

// CarryForward builds the synthetic bill that moves source's unpaid balance into
// toPeriodID. ok is false when nothing is owed.
func CarryForward(source Bill, toPeriodID snowflake.ID) (bill Bill, ok bool) {
	if !source.RemainingAmount.IsPositive() {
		return Bill{}, false
	}
	balance := source.RemainingAmount
	return Bill{
		CustomerID:      source.CustomerID,
		PeriodID:        toPeriodID,
		MeterReadingID:  source.MeterReadingID,
		Source:          SourceCarryForward,
		Consumption:     decimal.Zero,
		ConsumptionCost: decimal.Zero,
		SubscriptionFee: decimal.Zero,
		TaxAmount:       decimal.Zero,
		PreviousBalance: balance,
		TotalAmount:     balance,
		PaidAmount:      decimal.Zero,
		RemainingAmount: balance,
		IsPaid:          false,
	}, true
}

// CheckInvariants reports the first broken amount identity on b.
func CheckInvariants(b Bill) error {
	sum := b.ConsumptionCost.Add(b.SubscriptionFee).Add(b.TaxAmount).Add(b.PreviousBalance)
	if !sum.Equal(b.TotalAmount) {
		return fmt.Errorf("total %s does not equal components %s", b.TotalAmount, sum)
	}
	if !b.TotalAmount.Sub(b.PaidAmount).Equal(b.RemainingAmount) {
		return fmt.Errorf("remaining %s does not equal total %s - paid %s", b.RemainingAmount, b.TotalAmount, b.PaidAmount)
	}
	if b.IsPaid != !b.RemainingAmount.IsPositive() {
		return fmt.Errorf("isPaid=%t with remaining %s", b.IsPaid, b.RemainingAmount)
	}
	return nil
}

func (b *Bill) price(consumption decimal.Decimal, tariff Tariff) {
	b.Consumption = consumption
	b.ConsumptionCost = roundMoney(consumption.Mul(tariff.KilowattPrice))
	b.SubscriptionFee = roundMoney(tariff.SubscriptionFee)
	b.TaxAmount = roundMoney(b.ConsumptionCost.Mul(tariff.TaxRate))
	b.TotalAmount = b.ConsumptionCost.Add(b.SubscriptionFee).Add(b.TaxAmount).Add(b.PreviousBalance)
}

func (b *Bill) settle() {
	b.RemainingAmount = b.TotalAmount.Sub(b.PaidAmount)
	b.IsPaid = !b.RemainingAmount.IsPositive()
}
