package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsumption(t *testing.T) {
	got, err := NewConsumption(decimal.NewFromInt(100), decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(200)))

	zero, err := NewConsumption(decimal.NewFromInt(50), decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = NewConsumption(decimal.NewFromInt(300), decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrInvalidReading)

	_, err = NewConsumption(decimal.NewFromInt(-1), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidReading)
}

func TestSetValuesLeavesReadingUntouchedOnError(t *testing.T) {
	r := MeterReading{}
	require.NoError(t, r.SetValues(decimal.RequireFromString("10.5"), decimal.RequireFromString("12.75")))
	assert.Equal(t, "2.25", r.Consumption.String())

	err := r.SetValues(decimal.NewFromInt(20), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrInvalidReading)
	assert.Equal(t, "2.25", r.Consumption.String())
	assert.Equal(t, "12.75", r.CurrentReading.String())
}
