// Package testutil wires in-memory stores and fakes for service tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/migration"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/smallbiznis/meterbill/internal/store/sqlstore"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewStore returns a migrated store on a private in-memory SQLite database.
func NewStore(t *testing.T) storedomain.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Migrate(conn))
	return sqlstore.New(conn)
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// NewClock pins time to a fixed instant.
func NewClock() *clock.FakeClock {
	return clock.NewFakeClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
}

func BillingConfig() *config.BillingConfigHolder {
	return config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
}

// Emitter records every event it receives.
type Emitter struct {
	mu     sync.Mutex
	events []notificationdomain.Event
}

func (e *Emitter) Emit(_ context.Context, event notificationdomain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *Emitter) Events() []notificationdomain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notificationdomain.Event(nil), e.events...)
}

// Types lists the emitted event types in order.
func (e *Emitter) Types() []notificationdomain.Type {
	var out []notificationdomain.Type
	for _, ev := range e.Events() {
		out = append(out, ev.Type)
	}
	return out
}
