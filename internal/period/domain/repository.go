package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// List orders periods by start date, newest first.
	List(ctx context.Context) ([]BillingPeriod, error)
	FindByID(ctx context.Context, id snowflake.ID) (*BillingPeriod, error)
	FindActive(ctx context.Context) (*BillingPeriod, error)
	Insert(ctx context.Context, period *BillingPeriod) error
	Update(ctx context.Context, period *BillingPeriod) error
	DeactivateAll(ctx context.Context) error
}
