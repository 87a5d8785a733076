package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ListFilter struct {
	UnreadOnly bool
	Limit      int
}

type Repository interface {
	// List returns notifications newest first.
	List(ctx context.Context, filter ListFilter) ([]Notification, error)
	Insert(ctx context.Context, n *Notification) error
	MarkRead(ctx context.Context, id snowflake.ID) error
	MarkAllRead(ctx context.Context) (int64, error)
}
