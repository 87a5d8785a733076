package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/customer/domain"
	"github.com/smallbiznis/meterbill/internal/customer/service"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc     domain.Service
	store   storedomain.Store
	emitter *testutil.Emitter
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := testutil.NewStore(t)
	emitter := &testutil.Emitter{}
	svc := service.New(service.Params{
		Store:   store,
		Log:     zap.NewNop(),
		GenID:   testutil.NewNode(t),
		Clock:   testutil.NewClock(),
		Emitter: emitter,
	})
	return fixture{svc: svc, store: store, emitter: emitter}
}

func validRequest(account string) domain.CreateCustomerRequest {
	return domain.CreateCustomerRequest{
		Name:          "  Jane Doe ",
		Address:       "12 Elm St",
		Phone:         "555-0101",
		AccountNumber: account,
		MeterNumber:   "MTR-" + account,
		ContractType:  "residential",
	}
}

func TestCreateCustomer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validRequest("ACC-1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Jane Doe", created.Name)
	assert.Equal(t, time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), created.CreatedAt)

	got, err := f.svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "ACC-1", got.AccountNumber)

	assert.Equal(t, []notificationdomain.Type{notificationdomain.TypeCreate}, f.emitter.Types())
}

func TestCreateCustomerValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.CreateCustomerRequest)
		want   error
	}{
		{"missing name", func(r *domain.CreateCustomerRequest) { r.Name = " " }, domain.ErrInvalidName},
		{"missing account", func(r *domain.CreateCustomerRequest) { r.AccountNumber = "" }, domain.ErrInvalidAccountNumber},
		{"missing meter", func(r *domain.CreateCustomerRequest) { r.MeterNumber = "" }, domain.ErrInvalidMeterNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("ACC-V")
			tc.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.emitter.Events())
}

func TestCreateCustomerDuplicateAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, validRequest("ACC-1"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, validRequest("ACC-1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)
}

func TestUpdateCustomer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, validRequest("ACC-1"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, validRequest("ACC-2"))
	require.NoError(t, err)

	name := "Janet"
	notes := "gate code 1234"
	updated, err := f.svc.Update(ctx, domain.UpdateCustomerRequest{ID: a.ID.String(), Name: &name, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "Janet", updated.Name)
	assert.Equal(t, "gate code 1234", updated.Notes)
	assert.Equal(t, "ACC-1", updated.AccountNumber)

	taken := "ACC-2"
	_, err = f.svc.Update(ctx, domain.UpdateCustomerRequest{ID: a.ID.String(), AccountNumber: &taken})
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)

	empty := ""
	_, err = f.svc.Update(ctx, domain.UpdateCustomerRequest{ID: a.ID.String(), MeterNumber: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidMeterNumber)

	_, err = f.svc.Update(ctx, domain.UpdateCustomerRequest{ID: "12345", Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Update(ctx, domain.UpdateCustomerRequest{ID: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestDeleteCustomerRefusesOutstandingBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.svc.Create(ctx, validRequest("ACC-1"))
	require.NoError(t, err)

	bill := &billingdomain.Bill{
		ID:              9001,
		CustomerID:      c.ID,
		PeriodID:        42,
		MeterReadingID:  7,
		Source:          billingdomain.SourceMetered,
		TotalAmount:     decimal.NewFromInt(30),
		RemainingAmount: decimal.NewFromInt(30),
		IssueDate:       time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	require.NoError(t, f.store.Bills().Insert(ctx, bill))

	err = f.svc.Delete(ctx, c.ID.String())
	assert.ErrorIs(t, err, domain.ErrOutstandingBalance)

	paid, err := billingdomain.ApplyPayment(*bill, decimal.NewFromInt(30))
	require.NoError(t, err)
	require.NoError(t, f.store.Bills().Update(ctx, &paid))

	require.NoError(t, f.svc.Delete(ctx, c.ID.String()))
	_, err = f.svc.GetByID(ctx, c.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	history, err := f.store.Bills().ListByCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "bills survive customer deletion")

	assert.ErrorIs(t, f.svc.Delete(ctx, c.ID.String()), domain.ErrNotFound)
	assert.Equal(t,
		[]notificationdomain.Type{notificationdomain.TypeCreate, notificationdomain.TypeDelete},
		f.emitter.Types(),
	)
}
