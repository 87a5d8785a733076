package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/notification/domain"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const defaultListLimit = 100

type Params struct {
	fx.In

	Store     storedomain.Store
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Publisher domain.Publisher `optional:"true"`
}

type Service struct {
	store     storedomain.Store
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	publisher domain.Publisher
}

func NewService(p Params) domain.Service {
	return &Service{
		store:     p.Store,
		log:       p.Log.Named("notification.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		publisher: p.Publisher,
	}
}

// NewEmitter exposes the service as the Emitter the billing core depends on.
func NewEmitter(svc domain.Service) domain.Emitter {
	return svc
}

// Emit persists event and publishes it when a broker is configured. Failures are
// logged and swallowed: the mutation that raised the event has already committed.
func (s *Service) Emit(ctx context.Context, event domain.Event) {
	log := logger.WithContext(ctx, s.log)

	n, err := s.build(ctx, event)
	if err != nil {
		log.Warn("dropping invalid notification event",
			zap.String("type", string(event.Type)),
			zap.String("target_type", event.TargetType),
			zap.Error(err),
		)
		return
	}

	if err := s.store.Notifications().Insert(ctx, &n); err != nil {
		log.Error("failed to persist notification",
			zap.String("event_id", n.EventID),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		log.Warn("failed to publish notification",
			zap.String("event_id", n.EventID),
			zap.Error(err),
		)
	}
}

func (s *Service) build(ctx context.Context, event domain.Event) (domain.Notification, error) {
	if !event.Type.Valid() {
		return domain.Notification{}, domain.ErrInvalidEvent
	}
	title := strings.TrimSpace(event.Title)
	if title == "" {
		return domain.Notification{}, domain.ErrInvalidEvent
	}
	targetType := strings.TrimSpace(event.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	metadata := datatypes.JSONMap{}
	for key, value := range event.Metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		metadata[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if operator := obscontext.OperatorFromContext(ctx); operator != "" {
		metadata["operator"] = operator
	}

	now := s.clock.Now()
	n := domain.Notification{
		ID:         s.genID.Generate(),
		EventID:    ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Title:      title,
		Message:    strings.TrimSpace(event.Message),
		Type:       event.Type,
		TargetType: targetType,
		Metadata:   metadata,
		CreatedAt:  now,
	}
	if id := strings.TrimSpace(event.TargetID); id != "" {
		n.TargetID = &id
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Notification, error) {
	limit := req.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	items, err := s.store.Notifications().List(ctx, domain.ListFilter{
		UnreadOnly: req.UnreadOnly,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.ErrInvalidID
	}
	return s.store.Notifications().MarkRead(ctx, parsed)
}

func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	return s.store.Notifications().MarkAllRead(ctx)
}
