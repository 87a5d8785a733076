package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/smallbiznis/meterbill/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Options{Prefix: "test", LockWait: 200 * time.Millisecond}), mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storedomain.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestWithinTxReleasesLock(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx storedomain.Store) error {
		assert.True(t, mr.Exists("test:lock"))
		return tx.Customers().Insert(ctx, storetest.NewCustomer("L-1", time.Now()))
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock"))

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(storedomain.Store) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("test:lock"))
}

func TestWithinTxTimesOutWhileLocked(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("test:lock", "someone-else"))

	err := s.WithinTx(context.Background(), func(storedomain.Store) error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)
	got, _ := mr.Get("test:lock")
	assert.Equal(t, "someone-else", got, "foreign lock must not be released")
}

func TestNestedTxRollsBackToSavepoint(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	outer := storetest.NewCustomer("N-1", time.Now())
	inner := storetest.NewCustomer("N-2", time.Now())
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx storedomain.Store) error {
		if err := tx.Customers().Insert(ctx, outer); err != nil {
			return err
		}
		nestedErr := tx.WithinTx(ctx, func(tx storedomain.Store) error {
			if err := tx.Customers().Insert(ctx, inner); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, nestedErr, boom)
		return nil
	})
	require.NoError(t, err)

	got, err := s.Customers().FindByID(ctx, outer.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	got, err = s.Customers().FindByID(ctx, inner.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	byAccount, err := s.Customers().FindByAccountNumber(ctx, "N-2")
	require.NoError(t, err)
	assert.Nil(t, byAccount)
}

func TestLockerReleaseRequiresToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "wrong"))
	assert.True(t, mr.Exists("k"))
	require.NoError(t, locker.Release(ctx, "k", token))
	assert.False(t, mr.Exists("k"))

	_, _, err = locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
}
