package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Repository finders return (nil, nil) when nothing matches.
type Repository interface {
	List(ctx context.Context) ([]Customer, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Customer, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) (*Customer, error)
	Insert(ctx context.Context, customer *Customer) error
	Update(ctx context.Context, customer *Customer) error
	Delete(ctx context.Context, id snowflake.ID) error
}
