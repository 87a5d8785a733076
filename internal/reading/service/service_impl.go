package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/reading/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store storedomain.Store
	Log   *zap.Logger
}

type Service struct {
	store storedomain.Store
	log   *zap.Logger
}

func New(p Params) domain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("reading.service"),
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.MeterReading, error) {
	readingID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.MeterReading{}, err
	}
	item, err := s.store.Readings().FindByID(ctx, readingID)
	if err != nil {
		return domain.MeterReading{}, err
	}
	if item == nil {
		return domain.MeterReading{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.MeterReading, error) {
	id, err := parseID(customerID, domain.ErrInvalidCustomerID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Readings().ListByCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.MeterReading{}
	}
	return items, nil
}

func (s *Service) Latest(ctx context.Context, customerID string) (*domain.MeterReading, error) {
	id, err := parseID(customerID, domain.ErrInvalidCustomerID)
	if err != nil {
		return nil, err
	}
	return s.store.Readings().FindLatestByCustomer(ctx, id)
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
