package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Notification, error) {
	var items []domain.Notification
	stmt := r.db.WithContext(ctx).Model(&domain.Notification{})
	if filter.UnreadOnly {
		stmt = stmt.Where("is_read = ?", false)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Insert(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *repo) MarkRead(ctx context.Context, id snowflake.ID) error {
	res := r.db.WithContext(ctx).Exec(`UPDATE notifications SET is_read = ? WHERE id = ?`, true, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) MarkAllRead(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`UPDATE notifications SET is_read = ? WHERE is_read = ?`, true, false)
	return res.RowsAffected, res.Error
}
