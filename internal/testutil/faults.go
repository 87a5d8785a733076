package testutil

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
)

// Faults decides which repository calls fail. Nil hooks pass through.
type Faults struct {
	mu            sync.Mutex
	BillInsert    func(*billingdomain.Bill) error
	ReadingInsert func(*readingdomain.MeterReading) error
	BillUpdate    func(*billingdomain.Bill) error
	PaymentInsert func(*paymentdomain.Payment) error
	FindBill      func(snowflake.ID) error
	// ListCustomers runs before the customer list is read outside a transaction.
	ListCustomers func() error
}

func (f *Faults) check(hook func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook()
}

// FaultStore wraps a Store and injects failures into bill and payment writes,
// including writes made inside WithinTx.
type FaultStore struct {
	storedomain.Store
	Faults *Faults
}

func NewFaultStore(inner storedomain.Store) *FaultStore {
	return &FaultStore{Store: inner, Faults: &Faults{}}
}

func (s *FaultStore) Customers() customerdomain.Repository {
	return &faultCustomers{Repository: s.Store.Customers(), faults: s.Faults}
}

func (s *FaultStore) Readings() readingdomain.Repository {
	return &faultReadings{Repository: s.Store.Readings(), faults: s.Faults}
}

func (s *FaultStore) Bills() billingdomain.Repository {
	return &faultBills{Repository: s.Store.Bills(), faults: s.Faults}
}

func (s *FaultStore) Payments() paymentdomain.Repository {
	return &faultPayments{Repository: s.Store.Payments(), faults: s.Faults}
}

func (s *FaultStore) WithinTx(ctx context.Context, fn func(tx storedomain.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx storedomain.Store) error {
		return fn(&FaultStore{Store: tx, Faults: s.Faults})
	})
}

type faultBills struct {
	billingdomain.Repository
	faults *Faults
}

func (r *faultBills) FindByID(ctx context.Context, id snowflake.ID) (*billingdomain.Bill, error) {
	if err := r.faults.check(func() error {
		if r.faults.FindBill == nil {
			return nil
		}
		return r.faults.FindBill(id)
	}); err != nil {
		return nil, err
	}
	return r.Repository.FindByID(ctx, id)
}

func (r *faultBills) Insert(ctx context.Context, b *billingdomain.Bill) error {
	if err := r.faults.check(func() error {
		if r.faults.BillInsert == nil {
			return nil
		}
		return r.faults.BillInsert(b)
	}); err != nil {
		return err
	}
	return r.Repository.Insert(ctx, b)
}

func (r *faultBills) Update(ctx context.Context, b *billingdomain.Bill) error {
	if err := r.faults.check(func() error {
		if r.faults.BillUpdate == nil {
			return nil
		}
		return r.faults.BillUpdate(b)
	}); err != nil {
		return err
	}
	return r.Repository.Update(ctx, b)
}

type faultPayments struct {
	paymentdomain.Repository
	faults *Faults
}

func (r *faultPayments) Insert(ctx context.Context, p *paymentdomain.Payment) error {
	if err := r.faults.check(func() error {
		if r.faults.PaymentInsert == nil {
			return nil
		}
		return r.faults.PaymentInsert(p)
	}); err != nil {
		return err
	}
	return r.Repository.Insert(ctx, p)
}

type faultCustomers struct {
	customerdomain.Repository
	faults *Faults
}

func (r *faultCustomers) List(ctx context.Context) ([]customerdomain.Customer, error) {
	if err := r.faults.check(func() error {
		if r.faults.ListCustomers == nil {
			return nil
		}
		return r.faults.ListCustomers()
	}); err != nil {
		return nil, err
	}
	return r.Repository.List(ctx)
}

type faultReadings struct {
	readingdomain.Repository
	faults *Faults
}

func (r *faultReadings) Insert(ctx context.Context, m *readingdomain.MeterReading) error {
	if err := r.faults.check(func() error {
		if r.faults.ReadingInsert == nil {
			return nil
		}
		return r.faults.ReadingInsert(m)
	}); err != nil {
		return err
	}
	return r.Repository.Insert(ctx, m)
}
