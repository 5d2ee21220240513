package documents

import "time"

// Document is a stored applicant file of one kind (cv, identity).
type Document struct {
	ID            string
	UserID        string
	Kind          string
	FileName      string
	OriginalName  string
	MimeType      string
	SizeBytes     int64
	PageCount     int
	StorageKey    string
	SHA256        string
	ApplicationID string
	CreatedAt     time.Time
}

// Linked reports whether the document is attached to an application.
func (d Document) Linked() bool { return d.ApplicationID != "" }
