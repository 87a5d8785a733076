package domain

import "context"

type Repository interface {
	// Get returns nil when settings were never saved.
	Get(ctx context.Context) (*SystemSettings, error)
	Save(ctx context.Context, settings *SystemSettings) error
}
