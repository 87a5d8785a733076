package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/meterbill/internal/billing"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/billingoverview"
	overviewdomain "github.com/smallbiznis/meterbill/internal/billingoverview/domain"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/customer"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	"github.com/smallbiznis/meterbill/internal/notification"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	obslogger "github.com/smallbiznis/meterbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/meterbill/internal/observability/tracing"
	"github.com/smallbiznis/meterbill/internal/payment"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	"github.com/smallbiznis/meterbill/internal/period"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	"github.com/smallbiznis/meterbill/internal/ratelimit"
	"github.com/smallbiznis/meterbill/internal/reading"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	"github.com/smallbiznis/meterbill/internal/settings"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Services bundles the feature modules the HTTP server and the CLI share.
var Services = fx.Options(
	customer.Module,
	period.Module,
	reading.Module,
	billing.Module,
	payment.Module,
	billingoverview.Module,
	settings.Module,
	notification.Module,
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server, r *gin.Engine) { s.RegisterRoutes(r) }),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             log,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(OperatorContext())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Log             *zap.Logger
	CustomerSvc     customerdomain.Service
	PeriodSvc       perioddomain.Service
	ReadingSvc      readingdomain.Service
	BillingSvc      billingdomain.Service
	PaymentSvc      paymentdomain.Service
	OverviewSvc     overviewdomain.Service
	SettingsSvc     settingsdomain.Service
	NotificationSvc notificationdomain.Service
	WriteLimiter    *ratelimit.WriteLimiter `optional:"true"`
}

type Server struct {
	log             *zap.Logger
	customerSvc     customerdomain.Service
	periodSvc       perioddomain.Service
	readingSvc      readingdomain.Service
	billingSvc      billingdomain.Service
	paymentSvc      paymentdomain.Service
	overviewSvc     overviewdomain.Service
	settingsSvc     settingsdomain.Service
	notificationSvc notificationdomain.Service
	writeLimiter    *ratelimit.WriteLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		log:             p.Log.Named("http.server"),
		customerSvc:     p.CustomerSvc,
		periodSvc:       p.PeriodSvc,
		readingSvc:      p.ReadingSvc,
		billingSvc:      p.BillingSvc,
		paymentSvc:      p.PaymentSvc,
		overviewSvc:     p.OverviewSvc,
		settingsSvc:     p.SettingsSvc,
		notificationSvc: p.NotificationSvc,
		writeLimiter:    p.WriteLimiter,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.Use(s.WriteRateLimit())

	customers := api.Group("/customers")
	customers.GET("", s.ListCustomers)
	customers.POST("", s.CreateCustomer)
	customers.GET("/:id", s.GetCustomerByID)
	customers.PATCH("/:id", s.UpdateCustomer)
	customers.DELETE("/:id", s.DeleteCustomer)
	customers.GET("/:id/bills", s.ListCustomerBills)
	customers.GET("/:id/payments", s.ListCustomerPayments)
	customers.GET("/:id/readings", s.ListCustomerReadings)
	customers.GET("/:id/readings/latest", s.GetLatestReading)

	periods := api.Group("/periods")
	periods.GET("", s.ListPeriods)
	periods.POST("", s.OpenPeriod)
	periods.GET("/active", s.GetActivePeriod)
	periods.GET("/:id", s.GetPeriodByID)
	periods.GET("/:id/bills", s.ListPeriodBills)
	periods.GET("/:id/summary", s.GetPeriodSummary)
	periods.POST("/:id/activate", s.ActivatePeriod)
	periods.POST("/:id/carry-forward", s.CarryForward)

	api.POST("/readings", s.RecordReading)
	api.GET("/readings/:id", s.GetReadingByID)

	api.GET("/overview", s.GetOverview)

	api.GET("/bills", s.ListBills)
	api.GET("/bills/:id", s.GetBillByID)
	api.GET("/bills/:id/payments", s.ListBillPayments)

	api.GET("/payments", s.ListPayments)
	api.POST("/payments", s.RecordPayment)
	api.GET("/payments/:id", s.GetPaymentByID)

	api.GET("/settings", s.GetSettings)
	api.PATCH("/settings", s.UpdateSettings)

	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)
}
