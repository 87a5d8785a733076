package domain

import (
	"context"
	"errors"
	"fmt"

	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	"github.com/smallbiznis/meterbill/pkg/db"
)

// ErrDuplicateKey is returned by backends without native unique constraints.
var ErrDuplicateKey = errors.New("duplicate_key")

// IsDuplicate reports a unique-constraint violation from any backend.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || db.IsDuplicateKeyErr(err)
}

// Store is the persistence collaborator of the billing core. Repositories
// obtained from a Store passed to WithinTx share that transaction.
type Store interface {
	Customers() customerdomain.Repository
	Periods() perioddomain.Repository
	Readings() readingdomain.Repository
	Bills() billingdomain.Repository
	Payments() paymentdomain.Repository
	Settings() settingsdomain.Repository
	Notifications() notificationdomain.Repository

	// WithinTx runs fn atomically. Any error returned by fn rolls back every
	// write made through tx.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	// IsEmpty reports whether no customers, periods or settings exist.
	IsEmpty(ctx context.Context) (bool, error)
}

// PersistenceError wraps a storage failure with the operation and the step of a
// multi-write operation that failed.
type PersistenceError struct {
	Op   string
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err and leaves errors that already carry a
// PersistenceError untouched.
func Wrap(op, step string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Step: step, Err: err}
}

// StepOf returns the failing step recorded on err, if any.
func StepOf(err error) string {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Step
	}
	return ""
}
