package applications

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu     sync.RWMutex
	data   map[string]Application
	byUser map[string]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data:   make(map[string]Application),
		byUser: make(map[string]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, app Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[app.UserID]; ok {
		return ErrConflict
	}
	app.Answers = cloneAnswers(app.Answers)
	r.data[app.ID] = app
	r.byUser[app.UserID] = app.ID
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.data[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	app.Answers = cloneAnswers(app.Answers)
	return app, nil
}

func (r *MemoryRepo) GetByUser(ctx context.Context, userID string) (Application, error) {
	r.mu.RLock()
	id, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return Application{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *MemoryRepo) UpdateDocuments(ctx context.Context, id, cvURL, idDocumentURL string, status Status, at time.Time) error {
	return r.update(ctx, id, func(app *Application) {
		app.CVURL = cvURL
		app.IDDocumentURL = idDocumentURL
		app.Status = status
		app.UpdatedAt = at
	})
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	return r.update(ctx, id, func(app *Application) {
		app.Status = status
		app.UpdatedAt = at
	})
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Application)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	fn(&app)
	r.data[id] = app
	return nil
}

// List returns matching applications newest first and the total match count.
func (r *MemoryRepo) List(ctx context.Context, filter ListFilter) ([]Application, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	filter = normalizeFilter(filter)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	r.mu.RLock()
	matched := make([]Application, 0, len(r.data))
	for _, app := range r.data {
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if search != "" && !matchesSearch(app, search) {
			continue
		}
		app.Answers = cloneAnswers(app.Answers)
		matched = append(matched, app)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if filter.Offset >= total {
		return []Application{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func matchesSearch(app Application, search string) bool {
	for _, key := range []string{"firstName", "lastName", "email"} {
		if strings.Contains(strings.ToLower(app.Answers[key]), search) {
			return true
		}
	}
	return false
}

func cloneAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
