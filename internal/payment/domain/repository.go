package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	List(ctx context.Context) ([]Payment, error)
	ListByBill(ctx context.Context, billID snowflake.ID) ([]Payment, error)
	ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]Payment, error)
	Insert(ctx context.Context, payment *Payment) error
}
