package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the billing instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	readingsRecorded     metric.Int64Counter
	billsWritten         metric.Int64Counter
	paymentsRecorded     metric.Int64Counter
	paymentAmount        metric.Float64Counter
	periodsOpened        metric.Int64Counter
	carryForwards        metric.Int64Counter
	carryForwardFailures metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New registers the billing instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "meterbill"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.readingsRecorded, err = meter.Int64Counter("meterbill_readings_recorded_total",
		metric.WithDescription("Meter readings created or resubmitted")); err != nil {
		return nil, err
	}
	if m.billsWritten, err = meter.Int64Counter("meterbill_bills_written_total",
		metric.WithDescription("Bills created or re-derived")); err != nil {
		return nil, err
	}
	if m.paymentsRecorded, err = meter.Int64Counter("meterbill_payments_recorded_total"); err != nil {
		return nil, err
	}
	if m.paymentAmount, err = meter.Float64Counter("meterbill_payment_amount_total",
		metric.WithDescription("Sum of applied payment amounts")); err != nil {
		return nil, err
	}
	if m.periodsOpened, err = meter.Int64Counter("meterbill_periods_opened_total"); err != nil {
		return nil, err
	}
	if m.carryForwards, err = meter.Int64Counter("meterbill_carry_forwards_total",
		metric.WithDescription("Unpaid balances carried into a new period")); err != nil {
		return nil, err
	}
	if m.carryForwardFailures, err = meter.Int64Counter("meterbill_carry_forward_failures_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordReading counts a reading; resubmitted is true when an existing reading was updated.
func (m *Metrics) RecordReading(ctx context.Context, resubmitted bool) {
	if m == nil {
		return
	}
	m.readingsRecorded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.Bool("resubmitted", resubmitted),
	)...))
}

func (m *Metrics) RecordBill(ctx context.Context, source string, created bool) {
	if m == nil {
		return
	}
	action := "updated"
	if created {
		action = "created"
	}
	m.billsWritten.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("action", action),
	)...))
}

func (m *Metrics) RecordPayment(ctx context.Context, method string, amount float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("method", strings.TrimSpace(method)))...)
	m.paymentsRecorded.Add(ctx, 1, attrs)
	m.paymentAmount.Add(ctx, amount, attrs)
}

func (m *Metrics) RecordPeriodOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.periodsOpened.Add(ctx, 1)
}

// RecordCarryForwards counts the outcome of one rollover.
func (m *Metrics) RecordCarryForwards(ctx context.Context, created, failed int) {
	if m == nil {
		return
	}
	if created > 0 {
		m.carryForwards.Add(ctx, int64(created))
	}
	if failed > 0 {
		m.carryForwardFailures.Add(ctx, int64(failed))
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":      {},
	"action":      {},
	"method":      {},
	"resubmitted": {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips labels that could carry customer identifiers.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
