package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

type driverError struct{ msg string }

func (e *driverError) Error() string { return e.msg }

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/bills/:id"),
		attribute.String("customer.name", "Jane"),
		attribute.Int("http.status_code", 200),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("customer.name"), attr.Key)
	}
}

func TestSafeErrorHidesMessage(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	err := fmt.Errorf("update bill: %w", &driverError{msg: "UPDATE bills SET paid_amount = 12.50"})
	safe := SafeError(err)
	assert.Equal(t, "*tracing.driverError", safe.Error())

	plain := SafeError(errors.New("boom"))
	assert.Equal(t, "*errors.errorString", plain.Error())
}
