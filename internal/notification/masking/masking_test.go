package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", MaskValue("  "))
	assert.Equal(t, "****", MaskValue("123"))
	assert.Equal(t, "****4567", MaskValue("555-1234567"))
}

func TestMaskMetadata(t *testing.T) {
	in := map[string]any{
		"customerId":     "1234",
		"account_number": "ACC-000981",
		"phone":          "555-0100",
		"amount":         "12.50",
		"nested": map[string]any{
			"meterNumber": "MTR-77881",
		},
		"contacts": []any{map[string]any{"Phone": "555-0199"}},
		" ":        "dropped",
	}

	out := MaskMetadata(in)
	assert.Equal(t, "1234", out["customerId"])
	assert.Equal(t, "****0981", out["account_number"])
	assert.Equal(t, "****0100", out["phone"])
	assert.Equal(t, "12.50", out["amount"])
	assert.Equal(t, "****7881", out["nested"].(map[string]any)["meterNumber"])
	assert.Equal(t, "****0199", out["contacts"].([]any)[0].(map[string]any)["Phone"])
	assert.NotContains(t, out, " ")
	assert.Equal(t, "ACC-000981", in["account_number"], "input must not be mutated")

	assert.Nil(t, MaskMetadata(nil))
}
