package applications

import (
	"strings"
	"time"
)

// Status is the review state of an application.
type Status string

const (
	StatusDocumentsPending Status = "DOCUMENTS_PENDING"
	StatusPending          Status = "PENDING"
	StatusAccepted         Status = "ACCEPTED"
	StatusRejected         Status = "REJECTED"
)

// ParseStatus accepts any casing of a known status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusDocumentsPending, StatusPending, StatusAccepted, StatusRejected:
		return s, true
	}
	return "", false
}

// Reviewable reports whether an admin may set this status.
func (s Status) Reviewable() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusRejected
}

// Decided reports whether the application has been reviewed.
func (s Status) Decided() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Application is one applicant's record. A user owns at most one.
type Application struct {
	ID            string
	UserID        string
	Status        Status
	Answers       map[string]string
	CVURL         string
	IDDocumentURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ListFilter narrows the admin listing.
type ListFilter struct {
	Status Status
	// Search matches first name, last name or email.
	Search string
	Limit  int
	Offset int
}
