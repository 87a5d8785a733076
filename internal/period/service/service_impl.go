package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/period/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   storedomain.Store
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Metrics *obsmetrics.Metrics        `optional:"true"`
	Emitter notificationdomain.Emitter `optional:"true"`
}

type Service struct {
	store   storedomain.Store
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
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
		log:     p.Log.Named("period.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		metrics: p.Metrics,
		emitter: emitter,
	}
}

func (s *Service) List(ctx context.Context) ([]domain.BillingPeriod, error) {
	items, err := s.store.Periods().List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.BillingPeriod{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.BillingPeriod, error) {
	periodID, err := parseID(id)
	if err != nil {
		return domain.BillingPeriod{}, err
	}
	return s.get(ctx, s.store, periodID)
}

func (s *Service) GetActive(ctx context.Context) (domain.BillingPeriod, error) {
	active, err := s.store.Periods().FindActive(ctx)
	if err != nil {
		return domain.BillingPeriod{}, err
	}
	if active == nil {
		return domain.BillingPeriod{}, domain.ErrNoActivePeriod
	}
	return *active, nil
}

// Activate makes an existing period the active one. No balances move.
func (s *Service) Activate(ctx context.Context, id string) (domain.BillingPeriod, error) {
	periodID, err := parseID(id)
	if err != nil {
		return domain.BillingPeriod{}, err
	}

	var activated domain.BillingPeriod
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		period, err := s.get(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if err := tx.Periods().DeactivateAll(ctx); err != nil {
			return storedomain.Wrap("activate_period", "deactivate_periods", err)
		}
		period.IsActive = true
		if err := tx.Periods().Update(ctx, &period); err != nil {
			return storedomain.Wrap("activate_period", "update_period", err)
		}
		activated = period
		return nil
	})
	if err != nil {
		return domain.BillingPeriod{}, err
	}

	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypePeriod,
		Title:      "Billing period activated",
		Message:    "Billing period " + activated.Name + " is now active",
		TargetType: notificationdomain.TargetPeriod,
		TargetID:   activated.ID.String(),
	})
	return activated, nil
}

func (s *Service) get(ctx context.Context, store storedomain.Store, id snowflake.ID) (domain.BillingPeriod, error) {
	period, err := store.Periods().FindByID(ctx, id)
	if err != nil {
		return domain.BillingPeriod{}, err
	}
	if period == nil {
		return domain.BillingPeriod{}, domain.ErrNotFound
	}
	return *period, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
