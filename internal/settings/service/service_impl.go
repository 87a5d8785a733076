package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/smallbiznis/meterbill/internal/settings/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   storedomain.Store
	Log     *zap.Logger
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Emitter notificationdomain.Emitter `optional:"true"`
}

type Service struct {
	store   storedomain.Store
	log     *zap.Logger
	clock   clock.Clock
	billing *config.BillingConfigHolder
	emitter notificationdomain.Emitter
}

func New(p Params) domain.Service {
	emitter := p.Emitter
	if emitter == nil {
		emitter = notificationdomain.EmitterFunc(func(context.Context, notificationdomain.Event) {})
	}
	return &Service{
		store:   p.Store,
		log:     p.Log.Named("settings.service"),
		clock:   p.Clock,
		billing: p.Billing,
		emitter: emitter,
	}
}

func (s *Service) Get(ctx context.Context) (domain.SystemSettings, error) {
	return Resolve(ctx, s.store, s.billing)
}

// Resolve returns the persisted settings, falling back to the configured tariff
// defaults when nothing has been saved yet. store may be transactional.
func Resolve(ctx context.Context, store storedomain.Store, billing *config.BillingConfigHolder) (domain.SystemSettings, error) {
	saved, err := store.Settings().Get(ctx)
	if err != nil {
		return domain.SystemSettings{}, err
	}
	if saved != nil {
		return *saved, nil
	}
	return Defaults(billing)
}

func Defaults(billing *config.BillingConfigHolder) (domain.SystemSettings, error) {
	cfg := config.DefaultBillingConfig()
	if billing != nil {
		cfg = billing.Get()
	}
	price, fee, taxRate, err := cfg.Tariff.Amounts()
	if err != nil {
		return domain.SystemSettings{}, fmt.Errorf("parse tariff defaults: %w", err)
	}
	return domain.SystemSettings{
		ID:              domain.SingletonID,
		KilowattPrice:   price,
		SubscriptionFee: fee,
		TaxRate:         taxRate,
	}, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateSettingsRequest) (domain.SystemSettings, error) {
	if req.KilowattPrice == nil && req.SubscriptionFee == nil && req.TaxRate == nil {
		return domain.SystemSettings{}, domain.ErrEmptyUpdate
	}

	var saved domain.SystemSettings
	err := s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		current, err := Resolve(ctx, tx, s.billing)
		if err != nil {
			return err
		}
		if req.KilowattPrice != nil {
			current.KilowattPrice = *req.KilowattPrice
		}
		if req.SubscriptionFee != nil {
			current.SubscriptionFee = *req.SubscriptionFee
		}
		if req.TaxRate != nil {
			current.TaxRate = *req.TaxRate
		}
		if err := current.Validate(); err != nil {
			return err
		}
		current.UpdatedAt = s.clock.Now()
		if err := tx.Settings().Save(ctx, &current); err != nil {
			return storedomain.Wrap("update_settings", "save_settings", err)
		}
		saved = current
		return nil
	})
	if err != nil {
		return domain.SystemSettings{}, err
	}

	s.log.Info("tariff updated",
		zap.String("kilowatt_price", saved.KilowattPrice.String()),
		zap.String("subscription_fee", saved.SubscriptionFee.String()),
		zap.String("tax_rate", saved.TaxRate.String()),
	)
	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypeUpdate,
		Title:      "Settings updated",
		Message:    "Tariff settings were updated",
		TargetType: notificationdomain.TargetSettings,
		Metadata: map[string]any{
			"kilowattPrice":   saved.KilowattPrice.String(),
			"subscriptionFee": saved.SubscriptionFee.String(),
			"taxRate":         saved.TaxRate.String(),
		},
	})
	return saved, nil
}
