package applications

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectApplication = `
SELECT id, user_id, status, answers, cv_url, id_document_url, created_at, updated_at
FROM applications`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (Application, error) {
	var app Application
	var status string
	var answers []byte
	var cvURL, idURL sql.NullString
	if err := row.Scan(&app.ID, &app.UserID, &status, &answers, &cvURL, &idURL, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return Application{}, err
	}
	app.Status = Status(status)
	app.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &app.Answers); err != nil {
			return Application{}, fmt.Errorf("decode answers of %s: %w", app.ID, err)
		}
	}
	app.CVURL = cvURL.String
	app.IDDocumentURL = idURL.String
	return app, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new application.
func (r *PGRepo) Create(ctx context.Context, app Application) error {
	answers, err := json.Marshal(app.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	const query = `
INSERT INTO applications (id, user_id, status, answers, cv_url, id_document_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.DB.ExecContext(ctx, query,
		app.ID,
		app.UserID,
		string(app.Status),
		answers,
		nullString(app.CVURL),
		nullString(app.IDDocumentURL),
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *PGRepo) getOne(ctx context.Context, where string, arg string) (Application, error) {
	app, err := scanApplication(r.DB.QueryRowContext(ctx, selectApplication+"\nWHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return app, nil
}

// Get fetches an application by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Application, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByUser fetches the application owned by a user.
func (r *PGRepo) GetByUser(ctx context.Context, userID string) (Application, error) {
	return r.getOne(ctx, "user_id = $1", userID)
}

// UpdateDocuments stores document URLs and moves the status.
func (r *PGRepo) UpdateDocuments(ctx context.Context, id, cvURL, idDocumentURL string, status Status, at time.Time) error {
	const query = `
UPDATE applications
SET cv_url = $1, id_document_url = $2, status = $3, updated_at = $4
WHERE id = $5`
	return r.exec(ctx, query, nullString(cvURL), nullString(idDocumentURL), string(status), at, id)
}

// UpdateStatus sets the review status.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	const query = `
UPDATE applications
SET status = $1, updated_at = $2
WHERE id = $3`
	return r.exec(ctx, query, string(status), at, id)
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns matching applications newest first and the total match count.
func (r *PGRepo) List(ctx context.Context, filter ListFilter) ([]Application, int, error) {
	filter = normalizeFilter(filter)

	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(answers->>'firstName' ILIKE $%d OR answers->>'lastName' ILIKE $%d OR answers->>'email' ILIKE $%d)", n, n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = "\nWHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM applications"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := selectApplication + where + fmt.Sprintf("\nORDER BY created_at DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, app)
	}
	return out, total, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
