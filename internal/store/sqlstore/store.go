package sqlstore

import (
	"context"

	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	billingrepo "github.com/smallbiznis/meterbill/internal/billing/repository"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	customerrepo "github.com/smallbiznis/meterbill/internal/customer/repository"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	notificationrepo "github.com/smallbiznis/meterbill/internal/notification/repository"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/meterbill/internal/payment/repository"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	periodrepo "github.com/smallbiznis/meterbill/internal/period/repository"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	readingrepo "github.com/smallbiznis/meterbill/internal/reading/repository"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	settingsrepo "github.com/smallbiznis/meterbill/internal/settings/repository"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"gorm.io/gorm"
)

// Store implements storedomain.Store on top of GORM.
type Store struct {
	db            *gorm.DB
	customers     customerdomain.Repository
	periods       perioddomain.Repository
	readings      readingdomain.Repository
	bills         billingdomain.Repository
	payments      paymentdomain.Repository
	settings      settingsdomain.Repository
	notifications notificationdomain.Repository
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		customers:     customerrepo.New(db),
		periods:       periodrepo.New(db),
		readings:      readingrepo.New(db),
		bills:         billingrepo.New(db),
		payments:      paymentrepo.New(db),
		settings:      settingsrepo.New(db),
		notifications: notificationrepo.New(db),
	}
}

func (s *Store) Customers() customerdomain.Repository         { return s.customers }
func (s *Store) Periods() perioddomain.Repository             { return s.periods }
func (s *Store) Readings() readingdomain.Repository           { return s.readings }
func (s *Store) Bills() billingdomain.Repository              { return s.bills }
func (s *Store) Payments() paymentdomain.Repository           { return s.payments }
func (s *Store) Settings() settingsdomain.Repository          { return s.settings }
func (s *Store) Notifications() notificationdomain.Repository { return s.notifications }

// WithinTx nests as a savepoint when s is already transactional.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storedomain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT (SELECT COUNT(*) FROM customers) + (SELECT COUNT(*) FROM billing_periods) + (SELECT COUNT(*) FROM system_settings)`,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

var _ storedomain.Store = (*Store)(nil)
