package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"admissions-portal/internal/shared/storage/db"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectDocument = `
SELECT id, user_id, kind, file_name, original_name, mime_type, size_bytes, page_count, storage_key, sha256, application_id, created_at
FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var pageCount sql.NullInt64
	var applicationID sql.NullString
	if err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Kind,
		&doc.FileName,
		&doc.OriginalName,
		&doc.MimeType,
		&doc.SizeBytes,
		&pageCount,
		&doc.StorageKey,
		&doc.SHA256,
		&applicationID,
		&doc.CreatedAt,
	); err != nil {
		return Document{}, err
	}
	if pageCount.Valid {
		doc.PageCount = int(pageCount.Int64)
	}
	if applicationID.Valid {
		doc.ApplicationID = applicationID.String
	}
	return doc, nil
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    user_id,
    kind,
    file_name,
    original_name,
    mime_type,
    size_bytes,
    page_count,
    storage_key,
    sha256,
    application_id,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11)`

	var pageCount sql.NullInt64
	if doc.PageCount > 0 {
		pageCount = sql.NullInt64{Int64: int64(doc.PageCount), Valid: true}
	}
	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.Kind,
		doc.FileName,
		doc.OriginalName,
		doc.MimeType,
		doc.SizeBytes,
		pageCount,
		doc.StorageKey,
		doc.SHA256,
		doc.CreatedAt,
	)
	return err
}

// Get fetches a document by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Document, error) {
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, selectDocument+`
WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// Delete removes a document row.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByApplication returns the linked documents, oldest first.
func (r *PGRepo) ListByApplication(ctx context.Context, applicationID string) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, selectDocument+`
WHERE application_id = $1
ORDER BY created_at ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Link attaches documents to an application in one transaction.
func (r *PGRepo) Link(ctx context.Context, applicationID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `UPDATE documents SET application_id = $1 WHERE id = $2`, applicationID, id)
			if err != nil {
				return fmt.Errorf("link document %s: %w", id, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

var _ DocumentsRepo = (*PGRepo)(nil)
