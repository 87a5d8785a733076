package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate("start", "2025-02-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDate("start", "2025-02-01T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC), *got)

	got, err = parseDate("start", " ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDate("start", "01/02/2025")
	assert.ErrorContains(t, err, "--start")
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"seed"},
		{"period", "open"}, {"reading", "record"}, {"payment", "record"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRequiredFlags(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"payment", "record", "--bill", "1"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	assert.ErrorContains(t, err, "amount")
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append(args, "--operator", "test"))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	require.NoError(t, root.Execute(), args)
	return out.String()
}

func TestSeedThenOpenPeriod(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sql")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "meterbill.db"))
	t.Setenv("DATABASE_AUTO_MIGRATE", "true")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	run(t, "migrate")
	assert.Contains(t, run(t, "seed"), "demo data seeded")
	assert.Contains(t, run(t, "seed"), "nothing seeded")

	out := run(t, "period", "open", "--name", "Next month")
	var res perioddomain.OpenPeriodResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "next-month", res.Period.Code)
	require.NotNil(t, res.PreviousPeriod)
	assert.Len(t, res.CarriedForward, 2)
	assert.Empty(t, res.Failures)
}
