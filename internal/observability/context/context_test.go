package obscontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	empty := WithRequestID(context.Background(), "   ")
	assert.Equal(t, "", RequestIDFromContext(empty))
	assert.Equal(t, "", RequestIDFromContext(nil))
}

func TestOperatorRoundTrip(t *testing.T) {
	ctx := WithOperator(context.Background(), "cli")
	assert.Equal(t, "cli", OperatorFromContext(ctx))
	assert.Equal(t, "", OperatorFromContext(context.Background()))
}
