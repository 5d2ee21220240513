package applications

import (
	"context"
	"time"

	"admissions-portal/internal/documents"
)

// ApplicationResponse is the outward-facing representation of an application.
type ApplicationResponse struct {
	ID               string                       `json:"id"`
	UserID           string                       `json:"userId,omitempty"`
	Status           Status                       `json:"status"`
	Answers          map[string]string            `json:"answers"`
	CVURL            string                       `json:"cvUrl,omitempty"`
	IDDocumentURL    string                       `json:"idDocumentUrl,omitempty"`
	Documents        []documents.DocumentResponse `json:"documents,omitempty"`
	MissingDocuments []string                     `json:"missingDocuments,omitempty"`
	CreatedAt        time.Time                    `json:"createdAt"`
	UpdatedAt        time.Time                    `json:"updatedAt"`
}

// ListResponse is the admin listing payload.
type ListResponse struct {
	Applications []ApplicationResponse `json:"applications"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type attachRequest struct {
	CVURL         string `json:"cvUrl"`
	IDDocumentURL string `json:"idDocumentUrl"`
	Documents     []struct {
		Kind       string `json:"kind"`
		DocumentID string `json:"documentId"`
	} `json:"documents"`
}

func (r attachRequest) input() AttachInput {
	in := AttachInput{CVURL: r.CVURL, IDDocumentURL: r.IDDocumentURL}
	for _, d := range r.Documents {
		in.Documents = append(in.Documents, AttachedDocument{Kind: d.Kind, DocumentID: d.DocumentID})
	}
	return in
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func toResponse(app Application) ApplicationResponse {
	return ApplicationResponse{
		ID:            app.ID,
		UserID:        app.UserID,
		Status:        app.Status,
		Answers:       app.Answers,
		CVURL:         app.CVURL,
		IDDocumentURL: app.IDDocumentURL,
		CreatedAt:     app.CreatedAt,
		UpdatedAt:     app.UpdatedAt,
	}
}

func viewResponse(ctx context.Context, docs DocumentLinker, v View) ApplicationResponse {
	resp := toResponse(v.Application)
	resp.MissingDocuments = v.Missing
	for _, d := range v.Documents {
		resp.Documents = append(resp.Documents, documents.ToResponse(d, docs.URL(ctx, d)))
	}
	return resp
}
