package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/settings/domain"
	"github.com/smallbiznis/meterbill/internal/settings/service"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T, holder *config.BillingConfigHolder) (domain.Service, *testutil.Emitter) {
	t.Helper()
	emitter := &testutil.Emitter{}
	return service.New(service.Params{
		Store:   testutil.NewStore(t),
		Log:     zap.NewNop(),
		Clock:   testutil.NewClock(),
		Billing: holder,
		Emitter: emitter,
	}), emitter
}

func ptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestGetFallsBackToConfiguredDefaults(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.Tariff.KilowattPrice = "0.42"
	svc, _ := newService(t, config.NewStaticBillingConfigHolder(cfg))

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.42").Equal(got.KilowattPrice))
	assert.True(t, decimal.NewFromInt(10).Equal(got.SubscriptionFee))
	assert.True(t, decimal.RequireFromString("0.15").Equal(got.TaxRate))
}

func TestUpdateIsPartialAndPersisted(t *testing.T) {
	svc, emitter := newService(t, testutil.BillingConfig())
	ctx := context.Background()

	saved, err := svc.Update(ctx, domain.UpdateSettingsRequest{TaxRate: ptr("0.2")})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.2").Equal(saved.TaxRate))
	assert.True(t, decimal.RequireFromString("0.5").Equal(saved.KilowattPrice))

	saved, err = svc.Update(ctx, domain.UpdateSettingsRequest{KilowattPrice: ptr("0.75")})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.2").Equal(saved.TaxRate))

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.75").Equal(got.KilowattPrice))
	assert.True(t, decimal.RequireFromString("0.2").Equal(got.TaxRate))
	assert.Len(t, emitter.Events(), 2)
}

func TestUpdateRejectsInvalidTariff(t *testing.T) {
	svc, emitter := newService(t, testutil.BillingConfig())
	ctx := context.Background()

	_, err := svc.Update(ctx, domain.UpdateSettingsRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyUpdate)

	_, err = svc.Update(ctx, domain.UpdateSettingsRequest{KilowattPrice: ptr("0")})
	assert.ErrorIs(t, err, domain.ErrInvalidKilowattPrice)

	_, err = svc.Update(ctx, domain.UpdateSettingsRequest{SubscriptionFee: ptr("-1")})
	assert.ErrorIs(t, err, domain.ErrInvalidSubscriptionFee)

	_, err = svc.Update(ctx, domain.UpdateSettingsRequest{TaxRate: ptr("1.01")})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.5").Equal(got.KilowattPrice))
	assert.Empty(t, emitter.Events())
}
