package documents

import "context"

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	Delete(ctx context.Context, id string) error
	ListByApplication(ctx context.Context, applicationID string) ([]Document, error)
	// Link attaches documents to an application. It fails with ErrNotFound
	// when one of ids does not exist.
	Link(ctx context.Context, applicationID string, ids []string) error
}
