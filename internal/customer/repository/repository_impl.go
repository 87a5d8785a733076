package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/customer/domain"
	"gorm.io/gorm"
)

const customerColumns = `id, name, address, phone, account_number, meter_number, contract_type, notes, created_at, updated_at`

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) List(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := r.db.WithContext(ctx).Raw(
		`SELECT ` + customerColumns + ` FROM customers ORDER BY created_at DESC, id DESC`,
	).Scan(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) FindByAccountNumber(ctx context.Context, accountNumber string) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE account_number = ?`,
		accountNumber,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) Insert(ctx context.Context, c *domain.Customer) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.Address,
		c.Phone,
		c.AccountNumber,
		c.MeterNumber,
		c.ContractType,
		c.Notes,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, c *domain.Customer) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET name = ?, address = ?, phone = ?, account_number = ?, meter_number = ?,
		     contract_type = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name,
		c.Address,
		c.Phone,
		c.AccountNumber,
		c.MeterNumber,
		c.ContractType,
		c.Notes,
		c.UpdatedAt,
		c.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id snowflake.ID) error {
	res := r.db.WithContext(ctx).Exec(`DELETE FROM customers WHERE id = ?`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
