package domain

import (
	"context"
	"errors"
)

// Emitter receives core events. Implementations must not fail the caller.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event)

func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// Publisher fans notifications out to an external broker.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

type ListRequest struct {
	UnreadOnly bool
	Limit      int
}

type Service interface {
	Emitter
	List(context.Context, ListRequest) ([]Notification, error)
	MarkRead(context.Context, string) error
	MarkAllRead(context.Context) (int64, error)
}

var (
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidEvent = errors.New("invalid_event")
	ErrNotFound     = errors.New("not_found")
)
