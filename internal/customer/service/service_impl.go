package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
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
	Emitter notificationdomain.Emitter `optional:"true"`
}

type Service struct {
	store   storedomain.Store
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	emitter notificationdomain.Emitter
}

func New(p Params) domain.Service {
	emitter := p.Emitter
	if emitter == nil {
		emitter = notificationdomain.EmitterFunc(func(context.Context, notificationdomain.Event) {})
	}
	return &Service{
		store:   p.Store,
		log:     p.Log.Named("customer.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		emitter: emitter,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	now := s.clock.Now()
	customer := domain.Customer{
		ID:            s.genID.Generate(),
		Name:          strings.TrimSpace(req.Name),
		Address:       strings.TrimSpace(req.Address),
		Phone:         strings.TrimSpace(req.Phone),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		MeterNumber:   strings.TrimSpace(req.MeterNumber),
		ContractType:  strings.TrimSpace(req.ContractType),
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validate(customer); err != nil {
		return domain.Customer{}, err
	}

	if err := s.store.Customers().Insert(ctx, &customer); err != nil {
		if storedomain.IsDuplicate(err) {
			return domain.Customer{}, domain.ErrDuplicateAccount
		}
		return domain.Customer{}, storedomain.Wrap("create_customer", "insert_customer", err)
	}

	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypeCreate,
		Title:      "Customer added",
		Message:    "Customer " + customer.Name + " was added",
		TargetType: notificationdomain.TargetCustomer,
		TargetID:   customer.ID.String(),
		Metadata: map[string]any{
			"accountNumber": customer.AccountNumber,
			"meterNumber":   customer.MeterNumber,
		},
	})
	return customer, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Customer, error) {
	items, err := s.store.Customers().List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Customer{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	customerID, err := parseID(id)
	if err != nil {
		return domain.Customer{}, err
	}
	return s.get(ctx, s.store, customerID)
}

func (s *Service) get(ctx context.Context, store storedomain.Store, id snowflake.ID) (domain.Customer, error) {
	item, err := store.Customers().FindByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateCustomerRequest) (domain.Customer, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	var updated domain.Customer
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		customer, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		apply(&customer, req)
		if err := validate(customer); err != nil {
			return err
		}
		customer.UpdatedAt = s.clock.Now()

		if err := tx.Customers().Update(ctx, &customer); err != nil {
			if storedomain.IsDuplicate(err) {
				return domain.ErrDuplicateAccount
			}
			return err
		}
		updated = customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypeUpdate,
		Title:      "Customer updated",
		Message:    "Customer " + updated.Name + " was updated",
		TargetType: notificationdomain.TargetCustomer,
		TargetID:   updated.ID.String(),
	})
	return updated, nil
}

// Delete refuses customers that still owe money. Historical bills and payments
// are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	customerID, err := parseID(id)
	if err != nil {
		return err
	}

	var deleted domain.Customer
	err = s.store.WithinTx(ctx, func(tx storedomain.Store) error {
		customer, err := s.get(ctx, tx, customerID)
		if err != nil {
			return err
		}
		bills, err := tx.Bills().ListByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		for _, bill := range bills {
			if bill.RemainingAmount.IsPositive() {
				return domain.ErrOutstandingBalance
			}
		}
		deleted = customer
		return tx.Customers().Delete(ctx, customerID)
	})
	if err != nil {
		return err
	}

	s.log.Info("customer deleted", zap.String("customer_id", customerID.String()))
	s.emitter.Emit(ctx, notificationdomain.Event{
		Type:       notificationdomain.TypeDelete,
		Title:      "Customer deleted",
		Message:    "Customer " + deleted.Name + " was deleted",
		TargetType: notificationdomain.TargetCustomer,
		TargetID:   deleted.ID.String(),
	})
	return nil
}

func apply(c *domain.Customer, req domain.UpdateCustomerRequest) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&c.Name, req.Name)
	set(&c.Address, req.Address)
	set(&c.Phone, req.Phone)
	set(&c.AccountNumber, req.AccountNumber)
	set(&c.MeterNumber, req.MeterNumber)
	set(&c.ContractType, req.ContractType)
	set(&c.Notes, req.Notes)
}

func validate(c domain.Customer) error {
	switch {
	case c.Name == "":
		return domain.ErrInvalidName
	case c.AccountNumber == "":
		return domain.ErrInvalidAccountNumber
	case c.MeterNumber == "":
		return domain.ErrInvalidMeterNumber
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
