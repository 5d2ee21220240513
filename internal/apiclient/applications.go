package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"admissions-portal/internal/uploads"
)

const (
	opCreate = "create application"
	opAttach = "attach documents"
	opMe     = "get application"
	opUpload = "upload document"
	opDelete = "delete document"
)

// Application is the server-side record as the API returns it.
type Application struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Answers          map[string]string `json:"answers,omitempty"`
	CVURL            string            `json:"cvUrl,omitempty"`
	IDDocumentURL    string            `json:"idDocumentUrl,omitempty"`
	Documents        []Document        `json:"documents,omitempty"`
	MissingDocuments []string          `json:"missingDocuments,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Document is a stored file linked to an application.
type Document struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	URL       string `json:"url"`
}

// AttachedDocument is one reference sent by the attach call.
type AttachedDocument struct {
	Kind       string `json:"kind"`
	DocumentID string `json:"documentId"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
}

// AttachRequest is the body of the attach call. Missing slots are left out.
type AttachRequest struct {
	CVURL         string             `json:"cvUrl,omitempty"`
	IDDocumentURL string             `json:"idDocumentUrl,omitempty"`
	Documents     []AttachedDocument `json:"documents"`
}

// NewAttachRequest builds an attach body from the references collected per
// slot. The first cv and identity references also fill the legacy URL fields.
func NewAttachRequest(slots []string, refs map[string][]uploads.RemoteRef) AttachRequest {
	req := AttachRequest{Documents: []AttachedDocument{}}
	for _, slot := range slots {
		for _, ref := range refs[slot] {
			req.Documents = append(req.Documents, AttachedDocument{
				Kind:       slot,
				DocumentID: ref.DocumentID,
				Path:       ref.Path,
				URL:        ref.URL,
			})
			switch {
			case slot == "cv" && req.CVURL == "":
				req.CVURL = ref.URL
			case slot == "identity" && req.IDDocumentURL == "":
				req.IDDocumentURL = ref.URL
			}
		}
	}
	return req
}

// CreateApplication posts the answers and returns the new record.
func (c *Client) CreateApplication(ctx context.Context, answers map[string]string) (Application, error) {
	var app Application
	if err := c.doJSON(ctx, opCreate, http.MethodPost, "/api/applications", answers, &app); err != nil {
		return Application{}, err
	}
	return app, nil
}

// AttachDocuments links uploaded documents to an application.
func (c *Client) AttachDocuments(ctx context.Context, applicationID string, req AttachRequest) (Application, error) {
	var app Application
	path := "/api/applications/" + url.PathEscape(applicationID) + "/documents"
	if err := c.doJSON(ctx, opAttach, http.MethodPatch, path, req, &app); err != nil {
		return Application{}, err
	}
	return app, nil
}

// MyApplication returns the caller's application.
func (c *Client) MyApplication(ctx context.Context) (Application, error) {
	var app Application
	if err := c.doJSON(ctx, opMe, http.MethodGet, "/api/applications/me", nil, &app); err != nil {
		return Application{}, err
	}
	return app, nil
}
