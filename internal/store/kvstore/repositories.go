package kvstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
)

func pairKey(a, b snowflake.ID) string {
	return fmt.Sprintf("%d:%d", a, b)
}

func duplicate(what string) error {
	return fmt.Errorf("%w: %s", storedomain.ErrDuplicateKey, what)
}

// Customers

type customerRepo struct{ s *Store }

func (r *customerRepo) List(ctx context.Context) ([]customerdomain.Customer, error) {
	items, err := listJSON[customerdomain.Customer](ctx, r.s, colCustomers)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b customerdomain.Customer) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return items, nil
}

func (r *customerRepo) FindByID(ctx context.Context, id snowflake.ID) (*customerdomain.Customer, error) {
	return getJSON[customerdomain.Customer](ctx, r.s, colCustomers, id.String())
}

func (r *customerRepo) FindByAccountNumber(ctx context.Context, accountNumber string) (*customerdomain.Customer, error) {
	id, ok, err := r.s.lookupIndex(ctx, idxCustomerAccount, accountNumber)
	if err != nil || !ok {
		return nil, err
	}
	return getJSON[customerdomain.Customer](ctx, r.s, colCustomers, id)
}

func (r *customerRepo) Insert(ctx context.Context, c *customerdomain.Customer) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		if existing, err := getJSON[customerdomain.Customer](ctx, tx, colCustomers, c.ID.String()); err != nil {
			return err
		} else if existing != nil {
			return duplicate("customers.id")
		}
		if _, taken, err := tx.lookupIndex(ctx, idxCustomerAccount, c.AccountNumber); err != nil {
			return err
		} else if taken {
			return duplicate("customers.account_number")
		}
		tx.putIndex(idxCustomerAccount, c.AccountNumber, c.ID.String())
		return tx.put(colCustomers, c.ID.String(), c)
	})
}

func (r *customerRepo) Update(ctx context.Context, c *customerdomain.Customer) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		existing, err := getJSON[customerdomain.Customer](ctx, tx, colCustomers, c.ID.String())
		if err != nil {
			return err
		}
		if existing == nil {
			return customerdomain.ErrNotFound
		}
		if existing.AccountNumber != c.AccountNumber {
			owner, taken, err := tx.lookupIndex(ctx, idxCustomerAccount, c.AccountNumber)
			if err != nil {
				return err
			}
			if taken && owner != c.ID.String() {
				return duplicate("customers.account_number")
			}
			tx.del(idxCustomerAccount, existing.AccountNumber)
			tx.putIndex(idxCustomerAccount, c.AccountNumber, c.ID.String())
		}
		updated := *c
		updated.CreatedAt = existing.CreatedAt
		return tx.put(colCustomers, c.ID.String(), &updated)
	})
}

func (r *customerRepo) Delete(ctx context.Context, id snowflake.ID) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		existing, err := getJSON[customerdomain.Customer](ctx, tx, colCustomers, id.String())
		if err != nil {
			return err
		}
		if existing == nil {
			return customerdomain.ErrNotFound
		}
		tx.del(idxCustomerAccount, existing.AccountNumber)
		tx.del(colCustomers, id.String())
		return nil
	})
}

// Billing periods

type periodRepo struct{ s *Store }

func (r *periodRepo) List(ctx context.Context) ([]perioddomain.BillingPeriod, error) {
	items, err := listJSON[perioddomain.BillingPeriod](ctx, r.s, colPeriods)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b perioddomain.BillingPeriod) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return items, nil
}

func (r *periodRepo) FindByID(ctx context.Context, id snowflake.ID) (*perioddomain.BillingPeriod, error) {
	return getJSON[perioddomain.BillingPeriod](ctx, r.s, colPeriods, id.String())
}

func (r *periodRepo) FindActive(ctx context.Context) (*perioddomain.BillingPeriod, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].IsActive {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (r *periodRepo) otherActive(ctx context.Context, tx *Store, id snowflake.ID) (bool, error) {
	active, err := (&periodRepo{s: tx}).FindActive(ctx)
	if err != nil {
		return false, err
	}
	return active != nil && active.ID != id, nil
}

func (r *periodRepo) Insert(ctx context.Context, p *perioddomain.BillingPeriod) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		if existing, err := getJSON[perioddomain.BillingPeriod](ctx, tx, colPeriods, p.ID.String()); err != nil {
			return err
		} else if existing != nil {
			return duplicate("billing_periods.id")
		}
		if p.IsActive {
			clash, err := r.otherActive(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if clash {
				return duplicate("billing_periods.is_active")
			}
		}
		return tx.put(colPeriods, p.ID.String(), p)
	})
}

func (r *periodRepo) Update(ctx context.Context, p *perioddomain.BillingPeriod) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		existing, err := getJSON[perioddomain.BillingPeriod](ctx, tx, colPeriods, p.ID.String())
		if err != nil {
			return err
		}
		if existing == nil {
			return perioddomain.ErrNotFound
		}
		if p.IsActive {
			clash, err := r.otherActive(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if clash {
				return duplicate("billing_periods.is_active")
			}
		}
		updated := *p
		updated.CreatedAt = existing.CreatedAt
		return tx.put(colPeriods, p.ID.String(), &updated)
	})
}

func (r *periodRepo) DeactivateAll(ctx context.Context) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		items, err := listJSON[perioddomain.BillingPeriod](ctx, tx, colPeriods)
		if err != nil {
			return err
		}
		for i := range items {
			if !items[i].IsActive {
				continue
			}
			items[i].IsActive = false
			if err := tx.put(colPeriods, items[i].ID.String(), &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Meter readings

type readingRepo struct{ s *Store }

func (r *readingRepo) FindByID(ctx context.Context, id snowflake.ID) (*readingdomain.MeterReading, error) {
	return getJSON[readingdomain.MeterReading](ctx, r.s, colReadings, id.String())
}

func (r *readingRepo) FindByCustomerAndPeriod(ctx context.Context, customerID, periodID snowflake.ID) (*readingdomain.MeterReading, error) {
	id, ok, err := r.s.lookupIndex(ctx, idxReadingCustomerPeriod, pairKey(customerID, periodID))
	if err != nil || !ok {
		return nil, err
	}
	return getJSON[readingdomain.MeterReading](ctx, r.s, colReadings, id)
}

func (r *readingRepo) FindLatestByCustomer(ctx context.Context, customerID snowflake.ID) (*readingdomain.MeterReading, error) {
	items, err := r.ListByCustomer(ctx, customerID)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (r *readingRepo) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]readingdomain.MeterReading, error) {
	all, err := listJSON[readingdomain.MeterReading](ctx, r.s, colReadings)
	if err != nil {
		return nil, err
	}
	items := slices.DeleteFunc(all, func(m readingdomain.MeterReading) bool {
		return m.CustomerID != customerID
	})
	slices.SortFunc(items, func(a, b readingdomain.MeterReading) int {
		if c := b.ReadingDate.Compare(a.ReadingDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return items, nil
}

func (r *readingRepo) Insert(ctx context.Context, m *readingdomain.MeterReading) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		key := pairKey(m.CustomerID, m.PeriodID)
		if _, taken, err := tx.lookupIndex(ctx, idxReadingCustomerPeriod, key); err != nil {
			return err
		} else if taken {
			return duplicate("meter_readings.customer_period")
		}
		tx.putIndex(idxReadingCustomerPeriod, key, m.ID.String())
		return tx.put(colReadings, m.ID.String(), m)
	})
}

func (r *readingRepo) Update(ctx context.Context, m *readingdomain.MeterReading) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		existing, err := getJSON[readingdomain.MeterReading](ctx, tx, colReadings, m.ID.String())
		if err != nil {
			return err
		}
		if existing == nil {
			return readingdomain.ErrNotFound
		}
		existing.PreviousReading = m.PreviousReading
		existing.CurrentReading = m.CurrentReading
		existing.ReadingDate = m.ReadingDate
		existing.Consumption = m.Consumption
		existing.UpdatedAt = m.UpdatedAt
		return tx.put(colReadings, m.ID.String(), existing)
	})
}

// Bills

type billRepo struct{ s *Store }

func (r *billRepo) FindByID(ctx context.Context, id snowflake.ID) (*billingdomain.Bill, error) {
	return getJSON[billingdomain.Bill](ctx, r.s, colBills, id.String())
}

func (r *billRepo) FindByCustomerAndPeriod(ctx context.Context, customerID, periodID snowflake.ID) (*billingdomain.Bill, error) {
	id, ok, err := r.s.lookupIndex(ctx, idxBillCustomerPeriod, pairKey(customerID, periodID))
	if err != nil || !ok {
		return nil, err
	}
	return getJSON[billingdomain.Bill](ctx, r.s, colBills, id)
}

func (r *billRepo) filter(ctx context.Context, keep func(billingdomain.Bill) bool) ([]billingdomain.Bill, error) {
	all, err := listJSON[billingdomain.Bill](ctx, r.s, colBills)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(b billingdomain.Bill) bool { return !keep(b) }), nil
}

func (r *billRepo) List(ctx context.Context) ([]billingdomain.Bill, error) {
	return r.newestFirst(ctx, func(billingdomain.Bill) bool { return true })
}

func (r *billRepo) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]billingdomain.Bill, error) {
	return r.newestFirst(ctx, func(b billingdomain.Bill) bool { return b.CustomerID == customerID })
}

func (r *billRepo) newestFirst(ctx context.Context, keep func(billingdomain.Bill) bool) ([]billingdomain.Bill, error) {
	items, err := r.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b billingdomain.Bill) int {
		if c := b.IssueDate.Compare(a.IssueDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return items, nil
}

func (r *billRepo) ListByPeriod(ctx context.Context, periodID snowflake.ID) ([]billingdomain.Bill, error) {
	items, err := r.filter(ctx, func(b billingdomain.Bill) bool { return b.PeriodID == periodID })
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b billingdomain.Bill) int {
		return cmp.Compare(a.CustomerID, b.CustomerID)
	})
	return items, nil
}

func (r *billRepo) Insert(ctx context.Context, b *billingdomain.Bill) error {
	if b.Version == 0 {
		b.Version = 1
	}
	return r.s.mutate(ctx, func(tx *Store) error {
		key := pairKey(b.CustomerID, b.PeriodID)
		if _, taken, err := tx.lookupIndex(ctx, idxBillCustomerPeriod, key); err != nil {
			return err
		} else if taken {
			return duplicate("bills.customer_period")
		}
		tx.putIndex(idxBillCustomerPeriod, key, b.ID.String())
		return tx.put(colBills, b.ID.String(), b)
	})
}

func (r *billRepo) Update(ctx context.Context, b *billingdomain.Bill) error {
	err := r.s.mutate(ctx, func(tx *Store) error {
		existing, err := getJSON[billingdomain.Bill](ctx, tx, colBills, b.ID.String())
		if err != nil {
			return err
		}
		if existing == nil || existing.Version != b.Version {
			return billingdomain.ErrConcurrentModification
		}
		updated := *b
		updated.CustomerID = existing.CustomerID
		updated.PeriodID = existing.PeriodID
		updated.IssueDate = existing.IssueDate
		updated.CreatedAt = existing.CreatedAt
		updated.Version = existing.Version + 1
		return tx.put(colBills, b.ID.String(), &updated)
	})
	if err != nil {
		return err
	}
	b.Version++
	return nil
}

// Payments

type paymentRepo struct{ s *Store }

func (r *paymentRepo) FindByID(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return getJSON[paymentdomain.Payment](ctx, r.s, colPayments, id.String())
}

func (r *paymentRepo) list(ctx context.Context, keep func(paymentdomain.Payment) bool) ([]paymentdomain.Payment, error) {
	all, err := listJSON[paymentdomain.Payment](ctx, r.s, colPayments)
	if err != nil {
		return nil, err
	}
	items := slices.DeleteFunc(all, func(p paymentdomain.Payment) bool { return !keep(p) })
	slices.SortFunc(items, func(a, b paymentdomain.Payment) int {
		if c := b.PaymentDate.Compare(a.PaymentDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return items, nil
}

func (r *paymentRepo) List(ctx context.Context) ([]paymentdomain.Payment, error) {
	return r.list(ctx, func(paymentdomain.Payment) bool { return true })
}

func (r *paymentRepo) ListByBill(ctx context.Context, billID snowflake.ID) ([]paymentdomain.Payment, error) {
	return r.list(ctx, func(p paymentdomain.Payment) bool { return p.BillID == billID })
}

func (r *paymentRepo) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]paymentdomain.Payment, error) {
	return r.list(ctx, func(p paymentdomain.Payment) bool { return p.CustomerID == customerID })
}

func (r *paymentRepo) Insert(ctx context.Context, p *paymentdomain.Payment) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		if existing, err := getJSON[paymentdomain.Payment](ctx, tx, colPayments, p.ID.String()); err != nil {
			return err
		} else if existing != nil {
			return duplicate("payments.id")
		}
		return tx.put(colPayments, p.ID.String(), p)
	})
}

// Settings

type settingsRepo struct{ s *Store }

const settingsField = "1"

func (r *settingsRepo) Get(ctx context.Context) (*settingsdomain.SystemSettings, error) {
	return getJSON[settingsdomain.SystemSettings](ctx, r.s, colSettings, settingsField)
}

func (r *settingsRepo) Save(ctx context.Context, settings *settingsdomain.SystemSettings) error {
	settings.ID = settingsdomain.SingletonID
	return r.s.mutate(ctx, func(tx *Store) error {
		return tx.put(colSettings, settingsField, settings)
	})
}

// Notifications

type notificationRepo struct{ s *Store }

func (r *notificationRepo) List(ctx context.Context, filter notificationdomain.ListFilter) ([]notificationdomain.Notification, error) {
	all, err := listJSON[notificationdomain.Notification](ctx, r.s, colNotifications)
	if err != nil {
		return nil, err
	}
	items := all
	if filter.UnreadOnly {
		items = slices.DeleteFunc(all, func(n notificationdomain.Notification) bool { return n.IsRead })
	}
	slices.SortFunc(items, func(a, b notificationdomain.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (r *notificationRepo) Insert(ctx context.Context, n *notificationdomain.Notification) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		return tx.put(colNotifications, n.ID.String(), n)
	})
}

func (r *notificationRepo) MarkRead(ctx context.Context, id snowflake.ID) error {
	return r.s.mutate(ctx, func(tx *Store) error {
		existing, err := getJSON[notificationdomain.Notification](ctx, tx, colNotifications, id.String())
		if err != nil {
			return err
		}
		if existing == nil {
			return notificationdomain.ErrNotFound
		}
		existing.IsRead = true
		return tx.put(colNotifications, id.String(), existing)
	})
}

func (r *notificationRepo) MarkAllRead(ctx context.Context) (int64, error) {
	var count int64
	err := r.s.mutate(ctx, func(tx *Store) error {
		items, err := listJSON[notificationdomain.Notification](ctx, tx, colNotifications)
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].IsRead {
				continue
			}
			items[i].IsRead = true
			if err := tx.put(colNotifications, items[i].ID.String(), &items[i]); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
