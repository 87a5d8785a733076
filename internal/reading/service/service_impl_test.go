package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/reading/domain"
	"github.com/smallbiznis/meterbill/internal/reading/service"
	"github.com/smallbiznis/meterbill/internal/store/storetest"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadingLookups(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	node := testutil.NewNode(t)
	svc := service.New(service.Params{Store: store, Log: zap.NewNop()})

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	customer := storetest.NewCustomer("A-1", jan)
	require.NoError(t, store.Customers().Insert(ctx, customer))

	var last domain.MeterReading
	for i, cur := range []int64{100, 250} {
		period := storetest.NewPeriod(fmt.Sprintf("p%d", i), jan.AddDate(0, i, 0), i == 1)
		require.NoError(t, store.Periods().Insert(ctx, period))
		at := jan.AddDate(0, i, 27)
		last = domain.MeterReading{
			ID:              node.Generate(),
			CustomerID:      customer.ID,
			PeriodID:        period.ID,
			PreviousReading: decimal.NewFromInt(cur - 100),
			CurrentReading:  decimal.NewFromInt(cur),
			Consumption:     decimal.NewFromInt(100),
			ReadingDate:     at,
			CreatedAt:       at,
			UpdatedAt:       at,
		}
		require.NoError(t, store.Readings().Insert(ctx, &last))
	}

	items, err := svc.ListByCustomer(ctx, customer.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, last.ID, items[0].ID)

	latest, err := svc.Latest(ctx, customer.ID.String())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, decimal.NewFromInt(250).Equal(latest.CurrentReading))

	got, err := svc.GetByID(ctx, last.ID.String())
	require.NoError(t, err)
	assert.Equal(t, last.CustomerID, got.CustomerID)

	_, err = svc.GetByID(ctx, node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetByID(ctx, "-")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
	_, err = svc.ListByCustomer(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCustomerID)

	none, err := svc.Latest(ctx, node.Generate().String())
	require.NoError(t, err)
	assert.Nil(t, none)

	empty, err := svc.ListByCustomer(ctx, node.Generate().String())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
