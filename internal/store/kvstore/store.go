package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
)

// Every collection is one Redis hash keyed "<prefix>:<collection>" mapping the
// record id to its JSON document. Unique constraints are kept in "idx:*" hashes.
const (
	colCustomers     = "customers"
	colPeriods       = "billing_periods"
	colReadings      = "meter_readings"
	colBills         = "bills"
	colPayments      = "payments"
	colSettings      = "settings"
	colNotifications = "notifications"

	idxCustomerAccount       = "idx:customer_account"
	idxReadingCustomerPeriod = "idx:reading_customer_period"
	idxBillCustomerPeriod    = "idx:bill_customer_period"

	lockKey = "lock"
)

type Options struct {
	Prefix   string
	LockTTL  time.Duration
	LockWait time.Duration
}

// Store implements storedomain.Store on Redis. All writes are serialized behind
// one store-wide lock and committed with MULTI/EXEC.
type Store struct {
	client   redis.UniversalClient
	prefix   string
	locker   *Locker
	lockTTL  time.Duration
	lockWait time.Duration
	tx       *overlay
}

func New(client redis.UniversalClient, opts Options) *Store {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "meterbill"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	return &Store{
		client:   client,
		prefix:   prefix,
		locker:   NewLocker(client),
		lockTTL:  opts.LockTTL,
		lockWait: opts.LockWait,
	}
}

func (s *Store) Customers() customerdomain.Repository         { return &customerRepo{s: s} }
func (s *Store) Periods() perioddomain.Repository             { return &periodRepo{s: s} }
func (s *Store) Readings() readingdomain.Repository           { return &readingRepo{s: s} }
func (s *Store) Bills() billingdomain.Repository              { return &billRepo{s: s} }
func (s *Store) Payments() paymentdomain.Repository           { return &paymentRepo{s: s} }
func (s *Store) Settings() settingsdomain.Repository          { return &settingsRepo{s: s} }
func (s *Store) Notifications() notificationdomain.Repository { return &notificationRepo{s: s} }

func (s *Store) key(collection string) string {
	return s.prefix + ":" + collection
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx storedomain.Store) error) error {
	if s.tx != nil {
		// Nested: behave like a savepoint on the enclosing overlay.
		saved := s.tx.snapshot()
		if err := fn(s); err != nil {
			s.tx.restore(saved)
			return err
		}
		return nil
	}

	token, err := s.locker.Lock(ctx, s.key(lockKey), s.lockTTL, s.lockWait)
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer func() {
		_ = s.locker.Release(context.WithoutCancel(ctx), s.key(lockKey), token)
	}()

	tx := &Store{
		client:   s.client,
		prefix:   s.prefix,
		locker:   s.locker,
		lockTTL:  s.lockTTL,
		lockWait: s.lockWait,
		tx:       newOverlay(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (s *Store) commit(ctx context.Context) error {
	if s.tx.empty() {
		return nil
	}
	writes := s.tx.snapshot()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for collection, fields := range writes {
			key := s.key(collection)
			var sets []any
			var dels []string
			for field, e := range fields {
				if e.deleted {
					dels = append(dels, field)
					continue
				}
				sets = append(sets, field, e.value)
			}
			if len(sets) > 0 {
				pipe.HSet(ctx, key, sets...)
			}
			if len(dels) > 0 {
				pipe.HDel(ctx, key, dels...)
			}
		}
		return nil
	})
	return err
}

func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	for _, collection := range []string{colCustomers, colPeriods, colSettings} {
		n, err := s.client.HLen(ctx, s.key(collection)).Result()
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// mutate runs fn on a transactional store, opening a transaction when s is not
// already inside one.
func (s *Store) mutate(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.WithinTx(ctx, func(tx storedomain.Store) error {
		return fn(tx.(*Store))
	})
}

func (s *Store) hget(ctx context.Context, collection, field string) ([]byte, bool, error) {
	if s.tx != nil {
		if e, ok := s.tx.get(collection, field); ok {
			if e.deleted {
				return nil, false, nil
			}
			return e.value, true, nil
		}
	}
	raw, err := s.client.HGet(ctx, s.key(collection), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *Store) hgetall(ctx context.Context, collection string) (map[string][]byte, error) {
	stored, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(stored))
	for field, value := range stored {
		out[field] = []byte(value)
	}
	if s.tx != nil {
		for field, e := range s.tx.collection(collection) {
			if e.deleted {
				delete(out, field)
				continue
			}
			out[field] = e.value
		}
	}
	return out, nil
}

func (s *Store) put(collection, field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, field, err)
	}
	s.tx.put(collection, field, raw)
	return nil
}

func (s *Store) putIndex(index, field, id string) {
	s.tx.put(index, field, []byte(id))
}

func (s *Store) del(collection, field string) {
	s.tx.del(collection, field)
}

func getJSON[T any](ctx context.Context, s *Store, collection, id string) (*T, error) {
	raw, ok, err := s.hget(ctx, collection, id)
	if err != nil || !ok {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &v, nil
}

func listJSON[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	all, err := s.hgetall(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for id, raw := range all {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// lookupIndex resolves a unique index entry to the owning record id.
func (s *Store) lookupIndex(ctx context.Context, index, field string) (string, bool, error) {
	raw, ok, err := s.hget(ctx, index, field)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(raw), true, nil
}

var _ storedomain.Store = (*Store)(nil)
