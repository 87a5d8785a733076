package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/smallbiznis/meterbill/internal/notification/service"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newService(t *testing.T, pub domain.Publisher) domain.Service {
	t.Helper()
	return service.NewService(service.Params{
		Store:     testutil.NewStore(t),
		Log:       zap.NewNop(),
		GenID:     testutil.NewNode(t),
		Clock:     testutil.NewClock(),
		Publisher: pub,
	})
}

func TestEmitPersistsAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx := obscontext.WithOperator(obscontext.WithRequestID(context.Background(), "req-1"), "clerk")

	svc.Emit(ctx, domain.Event{
		Type:       domain.TypeCreate,
		Title:      " Customer created ",
		Message:    "Customer Ada was created",
		TargetType: domain.TargetCustomer,
		TargetID:   "42",
		Metadata:   map[string]any{"phone": "555-0100", "": "dropped"},
	})

	items, err := svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	n := items[0]
	assert.Equal(t, "Customer created", n.Title)
	assert.Equal(t, domain.TypeCreate, n.Type)
	assert.Equal(t, domain.TargetCustomer, n.TargetType)
	require.NotNil(t, n.TargetID)
	assert.Equal(t, "42", *n.TargetID)
	assert.Len(t, n.EventID, 26)
	assert.False(t, n.IsRead)
	assert.Equal(t, "req-1", n.Metadata["request_id"])
	assert.Equal(t, "clerk", n.Metadata["operator"])
	assert.NotContains(t, n.Metadata, "")

	require.Len(t, pub.sent, 1)
	assert.Equal(t, n.EventID, pub.sent[0].EventID)
}

func TestEmitDropsInvalidEvents(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	svc.Emit(ctx, domain.Event{Type: "bogus", Title: "x"})
	svc.Emit(ctx, domain.Event{Type: domain.TypeOther, Title: "  "})

	items, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, pub.sent)
}

func TestEmitKeepsNotificationWhenPublishFails(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, pub)
	ctx := context.Background()

	svc.Emit(ctx, domain.Event{Type: domain.TypePayment, Title: "Payment received"})

	items, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "unknown", items[0].TargetType)
	assert.Nil(t, items[0].TargetID)
}

func TestMarkRead(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		svc.Emit(ctx, domain.Event{Type: domain.TypeOther, Title: title})
	}

	items, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NoError(t, svc.MarkRead(ctx, items[0].ID.String()))
	unread, err := svc.List(ctx, domain.ListRequest{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	limited, err := svc.List(ctx, domain.ListRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := svc.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = svc.List(ctx, domain.ListRequest{UnreadOnly: true})
	require.NoError(t, err)
	assert.NotNil(t, unread)
	assert.Empty(t, unread)

	assert.ErrorIs(t, svc.MarkRead(ctx, "nope"), domain.ErrInvalidID)
	assert.ErrorIs(t, svc.MarkRead(ctx, "123456789"), domain.ErrNotFound)
}
