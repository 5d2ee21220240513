package applications

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("application not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("application already exists")
	ErrAlreadyClosed = errors.New("application already reviewed")
	ErrInvalidStatus = errors.New("invalid status")
)

// ValidationError carries field→message failures of the submitted answers.
type ValidationError struct {
	Fields map[string]string
	// First is the message of the first failing field in form order.
	First string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	return "invalid answers: " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
