package migration

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestAutoMigrateEnforcesSingleActivePeriod(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:migration_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(conn))
	// Idempotent.
	require.NoError(t, Migrate(conn))

	insert := `INSERT INTO billing_periods (id, name, code, start_date, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	require.NoError(t, conn.Exec(insert, 1, "Jan", "jan", now, true, now).Error)
	require.NoError(t, conn.Exec(insert, 2, "Feb", "feb", now, false, now).Error)
	require.NoError(t, conn.Exec(insert, 3, "Mar", "mar", now, false, now).Error)

	err = conn.Exec(insert, 4, "Apr", "apr", now, true, now).Error
	assert.Error(t, err)

	for _, table := range []string{"customers", "meter_readings", "bills", "payments", "system_settings", "notifications"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
