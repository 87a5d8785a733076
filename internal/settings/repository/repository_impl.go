package repository

import (
	"context"

	"github.com/smallbiznis/meterbill/internal/settings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Get(ctx context.Context) (*domain.SystemSettings, error) {
	var settings domain.SystemSettings
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, kilowatt_price, subscription_fee, tax_rate, updated_at FROM system_settings WHERE id = ?`,
		domain.SingletonID,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.ID == 0 {
		return nil, nil
	}
	return &settings, nil
}

// Save upserts the singleton row. The dialect renders ON CONFLICT or
// ON DUPLICATE KEY as appropriate.
func (r *repo) Save(ctx context.Context, settings *domain.SystemSettings) error {
	settings.ID = domain.SingletonID
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kilowatt_price", "subscription_fee", "tax_rate", "updated_at"}),
		}).
		Create(settings).Error
}
