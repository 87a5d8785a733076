package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	billingservice "github.com/smallbiznis/meterbill/internal/billing/service"
	overviewdomain "github.com/smallbiznis/meterbill/internal/billingoverview/domain"
	overviewservice "github.com/smallbiznis/meterbill/internal/billingoverview/service"
	"github.com/smallbiznis/meterbill/internal/config"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	customerservice "github.com/smallbiznis/meterbill/internal/customer/service"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	notificationservice "github.com/smallbiznis/meterbill/internal/notification/service"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	paymentservice "github.com/smallbiznis/meterbill/internal/payment/service"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	periodservice "github.com/smallbiznis/meterbill/internal/period/service"
	"github.com/smallbiznis/meterbill/internal/ratelimit"
	readingservice "github.com/smallbiznis/meterbill/internal/reading/service"
	settingsservice "github.com/smallbiznis/meterbill/internal/settings/service"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, limiter *ratelimit.WriteLimiter) *gin.Engine {
	t.Helper()
	store := testutil.NewStore(t)
	node := testutil.NewNode(t)
	clk := testutil.NewClock()
	holder := testutil.BillingConfig()
	log := zap.NewNop()

	notifications := notificationservice.NewService(notificationservice.Params{
		Store: store, Log: log, GenID: node, Clock: clk,
	})
	emitter := notificationservice.NewEmitter(notifications)

	srv := NewServer(Params{
		Log: log,
		CustomerSvc: customerservice.New(customerservice.Params{
			Store: store, Log: log, GenID: node, Clock: clk, Emitter: emitter,
		}),
		PeriodSvc: periodservice.New(periodservice.Params{
			Store: store, Log: log, GenID: node, Clock: clk, Billing: holder, Emitter: emitter,
		}),
		ReadingSvc: readingservice.New(readingservice.Params{Store: store, Log: log}),
		BillingSvc: billingservice.New(billingservice.Params{
			Store: store, Log: log, GenID: node, Clock: clk, Billing: holder, Emitter: emitter,
		}),
		PaymentSvc: paymentservice.New(paymentservice.Params{
			Store: store, Log: log, GenID: node, Clock: clk, Emitter: emitter,
		}),
		OverviewSvc: overviewservice.NewService(overviewservice.Params{Store: store, Log: log, Clock: clk}),
		SettingsSvc: settingsservice.New(settingsservice.Params{
			Store: store, Log: log, Clock: clk, Billing: holder, Emitter: emitter,
		}),
		NotificationSvc: notifications,
		WriteLimiter:    limiter,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWith(prometheus.NewRegistry())
	require.NoError(t, err)
	r := NewEngine(log, httpMetrics)
	srv.RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOperator, "clerk-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	return envelope.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func TestBillingFlowOverHTTP(t *testing.T) {
	r := newTestEngine(t, nil)

	w := do(t, r, http.MethodPost, "/api/customers", gin.H{
		"name": "Ada", "accountNumber": "ACC-1", "meterNumber": "M-1", "phone": "555-0100",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	customer := decode[customerdomain.Customer](t, w)

	w = do(t, r, http.MethodPost, "/api/periods", gin.H{"name": "January 2025"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	opened := decode[perioddomain.OpenPeriodResult](t, w)
	assert.Equal(t, "january-2025", opened.Period.Code)

	w = do(t, r, http.MethodPost, "/api/readings", gin.H{
		"customerId": customer.ID.String(), "previousReading": "100", "currentReading": "300",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recorded := decode[billingdomain.RecordReadingResult](t, w)
	assert.True(t, decimal.NewFromInt(125).Equal(recorded.Bill.TotalAmount))
	assert.True(t, recorded.BillCreated)

	w = do(t, r, http.MethodPost, "/api/payments", gin.H{"billId": recorded.Bill.ID.String(), "amount": "125.01"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "overpayment", decodeError(t, w).Type)

	w = do(t, r, http.MethodPost, "/api/payments", gin.H{"billId": recorded.Bill.ID.String(), "amount": "0.001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	precision := decodeError(t, w)
	require.Len(t, precision.Errors, 1)
	assert.Equal(t, "amount", precision.Errors[0].Field)
	assert.Equal(t, "invalid_amount_precision", precision.Errors[0].Code)

	w = do(t, r, http.MethodPost, "/api/payments", gin.H{"billId": recorded.Bill.ID.String(), "amount": 50, "paymentMethod": "card"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := decode[paymentdomain.RecordPaymentResult](t, w)
	assert.True(t, decimal.NewFromInt(75).Equal(paid.Bill.RemainingAmount))
	assert.False(t, paid.Bill.IsPaid)

	w = do(t, r, http.MethodGet, "/api/bills/"+recorded.Bill.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]paymentdomain.Payment](t, w), 1)

	w = do(t, r, http.MethodGet, "/api/customers/"+customer.ID.String()+"/bills", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]billingdomain.Bill](t, w), 1)

	w = do(t, r, http.MethodDelete, "/api/customers/"+customer.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodGet, "/api/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]notificationdomain.Notification](t, w)
	require.NotEmpty(t, notes)
	assert.Equal(t, "clerk-1", notes[0].Metadata["operator"])

	w = do(t, r, http.MethodPost, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/notifications?unread=true", nil)
	assert.Empty(t, decode[[]notificationdomain.Notification](t, w))
}

func TestOverviewOverHTTP(t *testing.T) {
	r := newTestEngine(t, nil)

	w := do(t, r, http.MethodPost, "/api/customers", gin.H{
		"name": "Ada", "accountNumber": "ACC-1", "meterNumber": "M-1", "contractType": "commercial",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	customer := decode[customerdomain.Customer](t, w)

	w = do(t, r, http.MethodPost, "/api/periods", gin.H{"name": "January 2025"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	period := decode[perioddomain.OpenPeriodResult](t, w).Period

	w = do(t, r, http.MethodPost, "/api/readings", gin.H{
		"customerId": customer.ID.String(), "previousReading": "100", "currentReading": "300",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	bill := decode[billingdomain.RecordReadingResult](t, w).Bill

	w = do(t, r, http.MethodPost, "/api/payments", gin.H{"billId": bill.ID.String(), "amount": "50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/bills", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bills := decode[[]billingdomain.Bill](t, w)
	require.Len(t, bills, 1)
	assert.Equal(t, bill.ID, bills[0].ID)

	w = do(t, r, http.MethodGet, "/api/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	payments := decode[[]paymentdomain.Payment](t, w)
	require.Len(t, payments, 1)
	assert.True(t, decimal.NewFromInt(50).Equal(payments[0].Amount))

	w = do(t, r, http.MethodGet, "/api/periods/"+period.ID.String()+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[overviewdomain.PeriodSummary](t, w)
	assert.Equal(t, 1, summary.BillCount)
	assert.True(t, decimal.NewFromInt(125).Equal(summary.TotalAmount))
	assert.True(t, decimal.NewFromInt(50).Equal(summary.PaidAmount))
	assert.True(t, decimal.NewFromInt(75).Equal(summary.OutstandingAmount))

	w = do(t, r, http.MethodGet, "/api/overview?top=1&recent=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	overview := decode[overviewdomain.Overview](t, w)
	assert.True(t, decimal.NewFromInt(125).Equal(overview.TotalBilled))
	assert.True(t, decimal.NewFromInt(50).Equal(overview.TotalPaid))
	assert.True(t, decimal.NewFromInt(75).Equal(overview.TotalOutstanding))
	require.Len(t, overview.BilledByContractType, 1)
	assert.Equal(t, "commercial", overview.BilledByContractType[0].ContractType)
	require.Len(t, overview.TopConsumers, 1)
	assert.Equal(t, customer.ID, overview.TopConsumers[0].CustomerID)
	assert.Len(t, overview.RecentPayments, 1)
	require.NotNil(t, overview.ActivePeriod)
	assert.Equal(t, period.ID, overview.ActivePeriod.Period.ID)

	w = do(t, r, http.MethodGet, "/api/overview?top=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "top", decodeError(t, w).Errors[0].Field)

	w = do(t, r, http.MethodGet, "/api/overview?recent=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_recent", decodeError(t, w).Errors[0].Code)

	w = do(t, r, http.MethodGet, "/api/periods/123456789/summary", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorResponses(t *testing.T) {
	r := newTestEngine(t, nil)

	w := do(t, r, http.MethodGet, "/api/customers/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "id", payload.Errors[0].Field)
	assert.Equal(t, "invalid_id", payload.Errors[0].Code)

	w = do(t, r, http.MethodGet, "/api/bills/123456789", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)

	w = do(t, r, http.MethodPost, "/api/readings", gin.H{"customerId": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	payload = decodeError(t, w)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "currentReading", payload.Errors[0].Field)
	assert.Equal(t, "required", payload.Errors[0].Code)

	w = do(t, r, http.MethodGet, "/api/periods/active", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_active_period", decodeError(t, w).Type)

	w = do(t, r, http.MethodPatch, "/api/settings", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_update", decodeError(t, w).Errors[0].Code)

	w = do(t, r, http.MethodGet, "/api/notifications?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsOverHTTP(t *testing.T) {
	r := newTestEngine(t, nil)

	w := do(t, r, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPatch, "/api/settings", gin.H{"taxRate": "0.2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		Data struct {
			KilowattPrice decimal.Decimal `json:"kilowattPrice"`
			TaxRate       decimal.Decimal `json:"taxRate"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, decimal.RequireFromString("0.2").Equal(got.Data.TaxRate))
	assert.True(t, decimal.RequireFromString("0.5").Equal(got.Data.KilowattPrice))

	w = do(t, r, http.MethodPatch, "/api/settings", gin.H{"taxRate": "1.5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestEngine(t, nil)

	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewWriteLimiter(config.Config{
		Redis:     config.RedisConfig{KeyPrefix: "test"},
		RateLimit: config.RateLimitConfig{Enabled: true, WriteRate: 0.001, WriteBurst: 2},
	}, client)
	require.NoError(t, err)
	r := newTestEngine(t, limiter)

	for i := 0; i < 2; i++ {
		w := do(t, r, http.MethodPost, "/api/periods", gin.H{"name": "p"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(t, r, http.MethodPost, "/api/periods", gin.H{"name": "p"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, w).Type)

	// reads are not limited
	w = do(t, r, http.MethodGet, "/api/periods", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
