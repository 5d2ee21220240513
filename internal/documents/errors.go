package documents

import "errors"

var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("forbidden")
	ErrUnknownKind     = errors.New("unknown document kind")
	ErrTooLarge        = errors.New("document too large")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrUnreadable      = errors.New("unreadable document")
)
