package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/billing/domain"
	"gorm.io/gorm"
)

const billColumns = `id, customer_id, period_id, meter_reading_id, source, consumption, consumption_cost,
	subscription_fee, tax_amount, previous_balance, total_amount, paid_amount, remaining_amount,
	is_paid, issue_date, due_date, version, created_at, updated_at`

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) findOne(ctx context.Context, query string, args ...any) (*domain.Bill, error) {
	var bill domain.Bill
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&bill).Error; err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) list(ctx context.Context, query string, args ...any) ([]domain.Bill, error) {
	var bills []domain.Bill
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Bill, error) {
	return r.findOne(ctx, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id)
}

func (r *repo) FindByCustomerAndPeriod(ctx context.Context, customerID, periodID snowflake.ID) (*domain.Bill, error) {
	return r.findOne(ctx,
		`SELECT `+billColumns+` FROM bills WHERE customer_id = ? AND period_id = ?`,
		customerID,
		periodID,
	)
}

func (r *repo) List(ctx context.Context) ([]domain.Bill, error) {
	return r.list(ctx, `SELECT `+billColumns+` FROM bills ORDER BY issue_date DESC, id DESC`)
}

func (r *repo) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Bill, error) {
	return r.list(ctx,
		`SELECT `+billColumns+` FROM bills WHERE customer_id = ? ORDER BY issue_date DESC, id DESC`,
		customerID,
	)
}

func (r *repo) ListByPeriod(ctx context.Context, periodID snowflake.ID) ([]domain.Bill, error) {
	return r.list(ctx,
		`SELECT `+billColumns+` FROM bills WHERE period_id = ? ORDER BY customer_id`,
		periodID,
	)
}

func (r *repo) Insert(ctx context.Context, b *domain.Bill) error {
	if b.Version == 0 {
		b.Version = 1
	}
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO bills (`+billColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.CustomerID,
		b.PeriodID,
		b.MeterReadingID,
		b.Source,
		b.Consumption,
		b.ConsumptionCost,
		b.SubscriptionFee,
		b.TaxAmount,
		b.PreviousBalance,
		b.TotalAmount,
		b.PaidAmount,
		b.RemainingAmount,
		b.IsPaid,
		b.IssueDate,
		b.DueDate,
		b.Version,
		b.CreatedAt,
		b.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, b *domain.Bill) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE bills
		 SET meter_reading_id = ?, source = ?, consumption = ?, consumption_cost = ?, subscription_fee = ?,
		     tax_amount = ?, previous_balance = ?, total_amount = ?, paid_amount = ?, remaining_amount = ?,
		     is_paid = ?, due_date = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		b.MeterReadingID,
		b.Source,
		b.Consumption,
		b.ConsumptionCost,
		b.SubscriptionFee,
		b.TaxAmount,
		b.PreviousBalance,
		b.TotalAmount,
		b.PaidAmount,
		b.RemainingAmount,
		b.IsPaid,
		b.DueDate,
		b.UpdatedAt,
		b.ID,
		b.Version,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	b.Version++
	return nil
}
