package applications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"admissions-portal/internal/documents"
	"admissions-portal/internal/form"
	"admissions-portal/internal/queue"
	"admissions-portal/internal/shared/metrics"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/shared/util"
)

// DocumentLinker is the documents side of an application.
type DocumentLinker interface {
	Get(ctx context.Context, userID, role, id string) (documents.Document, error)
	Link(ctx context.Context, userID, applicationID string, ids []string) ([]documents.Document, error)
	ForApplication(ctx context.Context, applicationID string) ([]documents.Document, error)
	URL(ctx context.Context, doc documents.Document) string
}

// Service contains business logic for applications.
type Service struct {
	Repo  Repo
	Form  *form.Definition
	Docs  DocumentLinker
	Queue queue.Client
	Now   func() time.Time
}

// AttachInput lists the documents sent by the attach call.
type AttachInput struct {
	CVURL         string
	IDDocumentURL string
	Documents     []AttachedDocument
}

// AttachedDocument is one referenced upload.
type AttachedDocument struct {
	Kind       string
	DocumentID string
}

// View is an application with its linked documents.
type View struct {
	Application
	Documents []documents.Document
	Missing   []string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create validates the answers and records the caller's application.
func (s *Service) Create(ctx context.Context, userID string, answers map[string]string, requestID string) (Application, error) {
	if userID == "" {
		return Application{}, ErrInvalidInput
	}
	clean := make(map[string]string, len(answers))
	for k, v := range answers {
		clean[k] = util.SanitizeText(v)
	}
	if errs := s.Form.ValidateAnswers(clean); len(errs) > 0 {
		return Application{}, s.validationError(errs)
	}
	if _, err := s.Repo.GetByUser(ctx, userID); err == nil {
		return Application{}, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return Application{}, err
	}

	now := s.now()
	app := Application{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusDocumentsPending,
		Answers:   clean,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, app); err != nil {
		return Application{}, err
	}

	metrics.IncApplicationCreated()
	telemetry.Info("applications.created", map[string]any{
		"application_id": app.ID,
		"user_id":        userID,
		"program":        clean["program"],
	})
	s.publish(ctx, app, queue.EventApplicationCreated, requestID)
	return app, nil
}

func (s *Service) validationError(errs map[string]string) error {
	verr := &ValidationError{Fields: errs}
	for _, name := range s.Form.FieldNames() {
		if msg, ok := errs[name]; ok {
			verr.First = msg
			break
		}
	}
	if verr.First == "" {
		for _, msg := range errs {
			verr.First = msg
			break
		}
	}
	return verr
}

// AttachDocuments links uploads to the caller's application and moves it
// to PENDING. Repeating the call replaces the document URLs.
func (s *Service) AttachDocuments(ctx context.Context, userID, applicationID string, in AttachInput, requestID string) (View, error) {
	app, err := s.Repo.Get(ctx, applicationID)
	if err != nil {
		return View{}, err
	}
	if app.UserID != userID {
		return View{}, ErrForbidden
	}
	if app.Status.Decided() {
		return View{}, ErrAlreadyClosed
	}

	ids := make([]string, 0, len(in.Documents))
	for _, d := range in.Documents {
		if d.DocumentID == "" {
			return View{}, fmt.Errorf("%w: missing document id", ErrInvalidInput)
		}
		doc, err := s.Docs.Get(ctx, userID, "", d.DocumentID)
		if err != nil {
			if errors.Is(err, documents.ErrNotFound) {
				return View{}, fmt.Errorf("%w: document %s not found", ErrInvalidInput, d.DocumentID)
			}
			return View{}, err
		}
		if d.Kind != "" && d.Kind != doc.Kind {
			return View{}, fmt.Errorf("%w: document %s is a %s", ErrInvalidInput, doc.ID, doc.Kind)
		}
		ids = append(ids, d.DocumentID)
	}

	linked, err := s.Docs.Link(ctx, userID, app.ID, ids)
	if err != nil {
		if errors.Is(err, documents.ErrForbidden) {
			return View{}, ErrForbidden
		}
		return View{}, err
	}

	cvURL, idURL := in.CVURL, in.IDDocumentURL
	for _, doc := range linked {
		switch {
		case doc.Kind == "cv" && cvURL == "":
			cvURL = s.Docs.URL(ctx, doc)
		case doc.Kind == "identity" && idURL == "":
			idURL = s.Docs.URL(ctx, doc)
		}
	}
	if err := s.Repo.UpdateDocuments(ctx, app.ID, cvURL, idURL, StatusPending, s.now()); err != nil {
		return View{}, err
	}

	metrics.IncDocumentsAttached(len(ids))
	telemetry.Info("applications.documents_attached", map[string]any{
		"application_id": app.ID,
		"user_id":        userID,
		"documents":      len(ids),
	})
	view, err := s.view(ctx, app.ID)
	if err != nil {
		return View{}, err
	}
	s.publish(ctx, view.Application, queue.EventDocumentsAttached, requestID)
	return view, nil
}

// Mine returns the caller's application.
func (s *Service) Mine(ctx context.Context, userID string) (View, error) {
	app, err := s.Repo.GetByUser(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return s.viewOf(ctx, app)
}

// Get returns any application; callers enforce the admin role.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	return s.view(ctx, id)
}

// List returns applications for review.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Application, int, error) {
	return s.Repo.List(ctx, filter)
}

// SetStatus records a review decision.
func (s *Service) SetStatus(ctx context.Context, id string, status Status, requestID string) (Application, error) {
	if !status.Reviewable() {
		return Application{}, ErrInvalidStatus
	}
	if err := s.Repo.UpdateStatus(ctx, id, status, s.now()); err != nil {
		return Application{}, err
	}
	app, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	telemetry.Info("applications.status_changed", map[string]any{
		"application_id":    id,
		"status_transition": string(status),
	})
	s.publish(ctx, app, queue.EventStatusChanged, requestID)
	return app, nil
}

func (s *Service) view(ctx context.Context, id string) (View, error) {
	app, err := s.Repo.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.viewOf(ctx, app)
}

func (s *Service) viewOf(ctx context.Context, app Application) (View, error) {
	docs, err := s.Docs.ForApplication(ctx, app.ID)
	if err != nil {
		return View{}, err
	}
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.Kind] = true
	}
	missing := []string{}
	for _, slot := range s.Form.Slots {
		if slot.Required && !present[slot.Name] {
			missing = append(missing, slot.Name)
		}
	}
	return View{Application: app, Documents: docs, Missing: missing}, nil
}

// publish is best effort: the record is already stored.
func (s *Service) publish(ctx context.Context, app Application, event queue.Event, requestID string) {
	if s.Queue == nil {
		return
	}
	msg := queue.NewMessage(app.ID, event, string(app.Status), requestID, s.now())
	if err := s.Queue.Send(ctx, msg); err != nil {
		telemetry.Error("applications.queue_failed", map[string]any{
			"application_id": app.ID,
			"event":          string(event),
			"error":          err.Error(),
		})
	}
}
