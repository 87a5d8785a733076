package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, bill_id, customer_id, amount, payment_date, payment_method, notes, created_at`

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) List(ctx context.Context) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).Raw(
		`SELECT ` + paymentColumns + ` FROM payments ORDER BY payment_date DESC, id DESC`,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListByBill(ctx context.Context, billID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE bill_id = ? ORDER BY payment_date DESC, id DESC`,
		billID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE customer_id = ? ORDER BY payment_date DESC, id DESC`,
		customerID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) Insert(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.BillID,
		p.CustomerID,
		p.Amount,
		p.PaymentDate,
		p.PaymentMethod,
		p.Notes,
		p.CreatedAt,
	).Error
}
