package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/period/domain"
	"gorm.io/gorm"
)

const periodColumns = `id, name, code, start_date, end_date, is_active, created_at`

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) List(ctx context.Context) ([]domain.BillingPeriod, error) {
	var periods []domain.BillingPeriod
	err := r.db.WithContext(ctx).Raw(
		`SELECT ` + periodColumns + ` FROM billing_periods ORDER BY start_date DESC, id DESC`,
	).Scan(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.BillingPeriod, error) {
	var period domain.BillingPeriod
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+periodColumns+` FROM billing_periods WHERE id = ?`,
		id,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) FindActive(ctx context.Context) (*domain.BillingPeriod, error) {
	var period domain.BillingPeriod
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+periodColumns+` FROM billing_periods WHERE is_active = ? ORDER BY start_date DESC LIMIT 1`,
		true,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) Insert(ctx context.Context, p *domain.BillingPeriod) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO billing_periods (`+periodColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Name,
		p.Code,
		p.StartDate,
		p.EndDate,
		p.IsActive,
		p.CreatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, p *domain.BillingPeriod) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE billing_periods SET name = ?, code = ?, start_date = ?, end_date = ?, is_active = ? WHERE id = ?`,
		p.Name,
		p.Code,
		p.StartDate,
		p.EndDate,
		p.IsActive,
		p.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) DeactivateAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE billing_periods SET is_active = ? WHERE is_active = ?`,
		false,
		true,
	).Error
}
