package uploads

import (
	"context"
	"errors"
)

var (
	ErrTaskNotFound      = errors.New("upload task not found")
	ErrTaskNotFailed     = errors.New("upload task is not in failed state")
	ErrRemovalInProgress = errors.New("upload task removal already in progress")
	ErrClosed            = errors.New("upload manager closed")
)

// RejectionKind classifies why a batch was refused.
type RejectionKind string

const (
	RejectTooLarge        RejectionKind = "too_large"
	RejectUnsupportedType RejectionKind = "unsupported_type"
	RejectSlotOccupied    RejectionKind = "slot_occupied"
)

// RejectionError is the slot-level error produced when a whole batch is refused.
type RejectionError struct {
	Slot     string
	FileName string
	Kind     RejectionKind
	Message  string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// UserMessager is implemented by transport errors that carry a message fit
// for display.
type UserMessager interface {
	UserMessage() string
}

const (
	reasonNetwork  = "Erreur réseau"
	reasonTimeout  = "Délai d'envoi dépassé"
	reasonCanceled = "Envoi annulé"
)

func reasonFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	case errors.Is(err, context.Canceled):
		return reasonCanceled
	}
	var um UserMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return reasonNetwork
}
