package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*MeterReading, error)
	FindByCustomerAndPeriod(ctx context.Context, customerID, periodID snowflake.ID) (*MeterReading, error)
	// FindLatestByCustomer returns the reading with the newest reading date.
	FindLatestByCustomer(ctx context.Context, customerID snowflake.ID) (*MeterReading, error)
	ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]MeterReading, error)
	Insert(ctx context.Context, reading *MeterReading) error
	Update(ctx context.Context, reading *MeterReading) error
}
