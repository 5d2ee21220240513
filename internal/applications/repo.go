package applications

import (
	"context"
	"time"
)

// Repo defines persistence operations for applications.
type Repo interface {
	// Create fails with ErrConflict when the user already has an application.
	Create(ctx context.Context, app Application) error
	Get(ctx context.Context, id string) (Application, error)
	GetByUser(ctx context.Context, userID string) (Application, error)
	UpdateDocuments(ctx context.Context, id, cvURL, idDocumentURL string, status Status, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	List(ctx context.Context, filter ListFilter) ([]Application, int, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func normalizeFilter(f ListFilter) ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
