package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	"github.com/smallbiznis/meterbill/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&customerdomain.Customer{},
		&perioddomain.BillingPeriod{},
		&readingdomain.MeterReading{},
		&billingdomain.Bill{},
		&paymentdomain.Payment{},
		&settingsdomain.SystemSettings{},
		&notificationdomain.Notification{},
	}
}

// Migrate brings the schema up to date. PostgreSQL uses the versioned SQL files;
// the other dialects are created from the models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	switch conn.Dialector.Name() {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		return AutoMigrate(conn)
	}
}

// RunMigrations applies the embedded PostgreSQL migrations.
func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

// AutoMigrate creates the schema from the models and adds the single-active-period
// index where the dialect supports partial indexes.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	switch conn.Dialector.Name() {
	case db.TypeSQLite, db.TypeSQLiteCGO, "postgres":
		if err := conn.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_billing_periods_single_active ON billing_periods (is_active) WHERE is_active`,
		).Error; err != nil {
			return fmt.Errorf("create active period index: %w", err)
		}
	}
	return nil
}
