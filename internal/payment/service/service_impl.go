package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/observability/tracing"
	"github.com/smallbiznis/meterbill/internal/payment/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const opRecordPayment = "record_payment"

var tracer = otel.Tracer("meterbill/payment")

type Params struct {
	fx.In

	Store   storedomain.Store
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics        `optional:"true"`
	Emitter notificationdomain.Emitter `optional:"true"`
}

type Service struct {
	store   storedomain.Store
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics
	emitter notificationdomain.Emitter
}

func New(p Params) domain.Service {
	emitter := p.Emitter
	if emitter == nil {
		emitter = notificationdomain.EmitterFunc(func(context.Context, notificationdomain.Event) {})
	}
	return &Service{
		store:   p.Store,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		emitter: emitter,
	}
}

// RecordPayment applies a payment to a bill. The bill update and the payment
// insert commit together or not at all.
func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (result domain.RecordPaymentResult, err error) {
	ctx, span := tracer.Start(ctx, "payment.record_payment")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "record payment failed")
		}
		span.End()
	}()

	billID, err := snowflake.ParseString(strings.TrimSpace(req.BillID))
	if err != nil || billID == 0 {
		return domain.RecordPaymentResult{}, domain.ErrInvalidBillID
	}
	if err := billingdomain.ValidatePaymentAmount(req.Amount); err != nil {
		return domain.RecordPaymentResult{}, err
	}
	method, err := domain.ParseMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaymentDate != nil {
		paidAt = req.PaymentDate.UTC()
	}

	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		bill, err := tx.Bills().FindByID(ctx, billID)
		if err != nil {
			return storedomain.Wrap(opRecordPayment, "load_bill", err)
		}
		if bill == nil {
			return domain.ErrBillNotFound
		}

		updated, err := billingdomain.ApplyPayment(*bill, req.Amount)
		if err != nil {
			return err
		}
		updated.UpdatedAt = now
		if err := tx.Bills().Update(ctx, &updated); err != nil {
			return storedomain.Wrap(opRecordPayment, "update_bill", err)
		}

		payment := domain.Payment{
			ID:            s.genID.Generate(),
			BillID:        updated.ID,
			CustomerID:    updated.CustomerID,
			Amount:        req.Amount,
			PaymentDate:   paidAt,
			PaymentMethod: method,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedAt:     now,
		}
		if err := tx.Payments().Insert(ctx, &payment); err != nil {
			return storedomain.Wrap(opRecordPayment, "insert_payment", err)
		}

		result = domain.RecordPaymentResult{Payment: payment, Bill: updated}
		return nil
	})
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}

	amount, _ := result.Payment.Amount.Float64()
	s.metrics.RecordPayment(ctx, string(method), amount)
	span.SetAttributes(
		attribute.String("payment.method", string(method)),
		attribute.Bool("bill.paid", result.Bill.IsPaid),
	)

	logger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("bill_id", result.Bill.ID.String()),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
		zap.String("remaining", result.Bill.RemainingAmount.StringFixed(2)),
		zap.Bool("paid", result.Bill.IsPaid),
	)

	title := "Payment received"
	if result.Bill.IsPaid {
		title = "Bill settled"
	}
	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypePayment,
		Title:      title,
		Message:    "Payment of " + result.Payment.Amount.StringFixed(2) + " recorded, remaining " + result.Bill.RemainingAmount.StringFixed(2),
		TargetType: notificationdomain.TargetPayment,
		TargetID:   result.Payment.ID.String(),
		Metadata: map[string]any{
			"billId":     result.Bill.ID.String(),
			"customerId": result.Bill.CustomerID.String(),
			"method":     string(method),
		},
	})
	return result, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Payment, error) {
	paymentID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Payment{}, err
	}
	payment, err := s.store.Payments().FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *payment, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Payment, error) {
	items, err := s.store.Payments().List(ctx)
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (s *Service) ListByBill(ctx context.Context, billID string) ([]domain.Payment, error) {
	id, err := parseID(billID, domain.ErrInvalidBillID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Payments().ListByBill(ctx, id)
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	id, err := parseID(customerID, billingdomain.ErrInvalidCustomerID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Payments().ListByCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func nonNil(items []domain.Payment) []domain.Payment {
	if items == nil {
		return []domain.Payment{}
	}
	return items
}
