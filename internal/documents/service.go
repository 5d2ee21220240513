package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"admissions-portal/internal/shared/auth"
	"admissions-portal/internal/shared/metrics"
	"admissions-portal/internal/shared/storage/object"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/shared/util"
	"admissions-portal/internal/uploads"
)

const defaultPresignTTL = 15 * time.Minute

// Service contains business logic for applicant documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
	// Kinds maps an upload endpoint to its slot rules.
	Kinds map[string]uploads.Slot
	// PublicBaseURL prefixes download links when the store cannot presign.
	PublicBaseURL string
	PresignTTL    time.Duration
}

// UploadInput is one received file.
type UploadInput struct {
	UserID    string
	Kind      string
	FileName  string
	FirstName string
	LastName  string
	Body      io.Reader
}

// NewKinds indexes slots by endpoint.
func NewKinds(slots []uploads.Slot) map[string]uploads.Slot {
	out := make(map[string]uploads.Slot, len(slots))
	for _, s := range slots {
		key := s.Endpoint
		if key == "" {
			key = s.Name
		}
		out[key] = s
	}
	return out
}

// Slot returns the rules of an upload kind.
func (s *Service) Slot(kind string) (uploads.Slot, bool) {
	slot, ok := s.Kinds[kind]
	return slot, ok
}

// Upload checks the file against its kind, stores it and records it.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Document, error) {
	slot, ok := s.Kinds[in.Kind]
	if !ok {
		return Document{}, ErrUnknownKind
	}
	original, err := util.SanitizeFileName(in.FileName)
	if err != nil || in.UserID == "" || in.Body == nil {
		return Document{}, ErrInvalidInput
	}
	if !slot.AcceptsName(original) {
		return Document{}, s.rejected(slot, ErrUnsupportedType, "extension")
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, slot.MaxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > slot.MaxBytes {
		return Document{}, s.rejected(slot, ErrTooLarge, "too_large")
	}
	if len(data) == 0 {
		return Document{}, ErrInvalidInput
	}

	mime := mimetype.Detect(data)
	if !slot.AcceptsMime(mime.String()) {
		return Document{}, s.rejected(slot, ErrUnsupportedType, "content")
	}
	pages := 0
	if mime.Is(mimePDF) {
		pages, err = pdfPageCount(data)
		if err != nil {
			metrics.IncDocumentRejected(slot.Name, "unreadable")
			return Document{}, err
		}
	}

	fileName := displayName(slot.Name, in.FirstName, in.LastName, original)
	stored, err := s.Store.Save(ctx, in.UserID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}

	doc := Document{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Kind:         slot.Name,
		FileName:     fileName,
		OriginalName: original,
		MimeType:     stored.MimeType,
		SizeBytes:    stored.Size,
		PageCount:    pages,
		StorageKey:   stored.Key,
		SHA256:       stored.SHA256,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		if delErr := s.Store.Delete(ctx, stored.Key); delErr != nil {
			telemetry.Error("documents.cleanup_failed", map[string]any{"storage_key": stored.Key, "error": delErr.Error()})
		}
		return Document{}, fmt.Errorf("record document: %w", err)
	}

	metrics.ObserveDocumentUploaded(slot.Name, doc.SizeBytes)
	telemetry.Info("documents.uploaded", map[string]any{
		"document_id": doc.ID,
		"user_id":     doc.UserID,
		"kind":        doc.Kind,
		"size_bytes":  doc.SizeBytes,
		"mime_type":   doc.MimeType,
		"page_count":  doc.PageCount,
	})
	return doc, nil
}

func (s *Service) rejected(slot uploads.Slot, err error, reason string) error {
	metrics.IncDocumentRejected(slot.Name, reason)
	return err
}

// Get returns a document the caller may read. Admins may read any document.
func (s *Service) Get(ctx context.Context, userID, role, id string) (Document, error) {
	doc, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.UserID != userID && role != auth.RoleAdmin {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Open returns a document and its content.
func (s *Service) Open(ctx context.Context, userID, role, id string) (Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, userID, role, id)
	if err != nil {
		return Document{}, nil, err
	}
	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return Document{}, nil, ErrNotFound
		}
		return Document{}, nil, err
	}
	return doc, body, nil
}

// Delete removes the caller's document. The stored object is removed after
// the record; a failure there is logged and leaves an unreferenced object.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		return ErrNotFound
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, doc.StorageKey); err != nil {
		telemetry.Error("documents.object_delete_failed", map[string]any{
			"document_id": id,
			"storage_key": doc.StorageKey,
			"error":       err.Error(),
		})
	}
	telemetry.Info("documents.deleted", map[string]any{"document_id": id, "user_id": userID})
	return nil
}

// Link attaches the caller's documents to an application and returns them.
func (s *Service) Link(ctx context.Context, userID, applicationID string, ids []string) ([]Document, error) {
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.UserID != userID {
			return nil, ErrForbidden
		}
		docs = append(docs, doc)
	}
	if err := s.Repo.Link(ctx, applicationID, ids); err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].ApplicationID = applicationID
	}
	return docs, nil
}

// ForApplication lists the documents linked to an application.
func (s *Service) ForApplication(ctx context.Context, applicationID string) ([]Document, error) {
	return s.Repo.ListByApplication(ctx, applicationID)
}

// URL returns a retrievable link: a presigned URL when the store supports
// it, the API download route otherwise.
func (s *Service) URL(ctx context.Context, doc Document) string {
	if p, ok := s.Store.(object.Presigner); ok {
		ttl := s.PresignTTL
		if ttl <= 0 {
			ttl = defaultPresignTTL
		}
		url, err := p.PresignGet(ctx, doc.StorageKey, ttl)
		if err == nil {
			return url
		}
		telemetry.Warn("documents.presign_failed", map[string]any{"document_id": doc.ID, "error": err.Error()})
	}
	return strings.TrimRight(s.PublicBaseURL, "/") + "/api/documents/" + doc.ID + "/file"
}

// displayName names a stored file after its kind and owner, keeping the
// uploaded extension: CV_Lovelace_Ada.pdf.
func displayName(kind, firstName, lastName, original string) string {
	parts := []string{strings.ToUpper(kind)}
	for _, raw := range []string{lastName, firstName} {
		if p, err := util.SanitizeFileName(util.SanitizeText(raw)); err == nil {
			parts = append(parts, strings.Join(strings.Fields(p), "-"))
		}
	}
	if len(parts) == 1 {
		return original
	}
	name, err := util.SanitizeFileName(strings.Join(parts, "_") + util.FileExt(original))
	if err != nil {
		return original
	}
	return name
}
