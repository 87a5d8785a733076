package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Bill, error)
	FindByCustomerAndPeriod(ctx context.Context, customerID, periodID snowflake.ID) (*Bill, error)
	List(ctx context.Context) ([]Bill, error)
	ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]Bill, error)
	ListByPeriod(ctx context.Context, periodID snowflake.ID) ([]Bill, error)
	Insert(ctx context.Context, bill *Bill) error
	// Update writes bill only if the stored version still equals bill.Version,
	// then bumps bill.Version. A stale version yields ErrConcurrentModification.
	Update(ctx context.Context, bill *Bill) error
}
