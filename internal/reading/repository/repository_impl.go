package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/reading/domain"
	"gorm.io/gorm"
)

const readingColumns = `id, customer_id, period_id, previous_reading, current_reading, reading_date, consumption, created_at, updated_at`

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) findOne(ctx context.Context, query string, args ...any) (*domain.MeterReading, error) {
	var reading domain.MeterReading
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&reading).Error; err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.MeterReading, error) {
	return r.findOne(ctx,
		`SELECT `+readingColumns+` FROM meter_readings WHERE id = ?`,
		id,
	)
}

func (r *repo) FindByCustomerAndPeriod(ctx context.Context, customerID, periodID snowflake.ID) (*domain.MeterReading, error) {
	return r.findOne(ctx,
		`SELECT `+readingColumns+` FROM meter_readings WHERE customer_id = ? AND period_id = ?`,
		customerID,
		periodID,
	)
}

func (r *repo) FindLatestByCustomer(ctx context.Context, customerID snowflake.ID) (*domain.MeterReading, error) {
	return r.findOne(ctx,
		`SELECT `+readingColumns+` FROM meter_readings WHERE customer_id = ?
		 ORDER BY reading_date DESC, created_at DESC LIMIT 1`,
		customerID,
	)
}

func (r *repo) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.MeterReading, error) {
	var readings []domain.MeterReading
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+readingColumns+` FROM meter_readings WHERE customer_id = ?
		 ORDER BY reading_date DESC, created_at DESC`,
		customerID,
	).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) Insert(ctx context.Context, m *domain.MeterReading) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO meter_readings (`+readingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.CustomerID,
		m.PeriodID,
		m.PreviousReading,
		m.CurrentReading,
		m.ReadingDate,
		m.Consumption,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, m *domain.MeterReading) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE meter_readings
		 SET previous_reading = ?, current_reading = ?, reading_date = ?, consumption = ?, updated_at = ?
		 WHERE id = ?`,
		m.PreviousReading,
		m.CurrentReading,
		m.ReadingDate,
		m.Consumption,
		m.UpdatedAt,
		m.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
