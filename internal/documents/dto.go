package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	FileName   string    `json:"fileName"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	PageCount  int       `json:"pageCount,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ToResponse renders doc with its retrievable URL.
func ToResponse(doc Document, url string) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID,
		Kind:       doc.Kind,
		Path:       doc.StorageKey,
		URL:        url,
		FileName:   doc.FileName,
		MimeType:   doc.MimeType,
		SizeBytes:  doc.SizeBytes,
		PageCount:  doc.PageCount,
		UploadedAt: doc.CreatedAt,
	}
}
