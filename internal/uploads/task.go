package uploads

import (
	"context"
	"io"
)

// State is the lifecycle state of an upload task.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// RemoteRef locates a successfully stored document.
type RemoteRef struct {
	DocumentID string `json:"documentId"`
	Path       string `json:"path"`
	URL        string `json:"url"`
	FileName   string `json:"fileName,omitempty"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
}

// Task is a read-only copy of one transfer's state.
type Task struct {
	ID       string
	Slot     string
	FileName string
	Size     int64
	Progress float64
	State    State
	Ref      RemoteRef
	Reason   string
	Started  bool
}

// EventKind distinguishes task notifications.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventRemoved   EventKind = "removed"
)

// Terminal reports whether no further events follow for the task.
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is pushed to listeners for every task change. Events of one task
// arrive in order; events of different tasks interleave.
type Event struct {
	Kind     EventKind
	Slot     string
	TaskID   string
	FileName string
	Progress float64
	Ref      RemoteRef
	Reason   string
}

// Listener receives task events. It may be called from several goroutines at once
// and may call back into the Manager; events that causes for the same task are
// delivered after it returns.
type Listener func(Event)

// UploadRequest is one transfer handed to a Transport.
type UploadRequest struct {
	Slot     Slot
	FileName string
	Size     int64
	Body     io.Reader
	Fields   map[string]string
	Progress func(sent, total int64)
}

// Transport moves file bytes to and from the remote store.
type Transport interface {
	Upload(ctx context.Context, req UploadRequest) (RemoteRef, error)
	Delete(ctx context.Context, ref RemoteRef) error
}
