package object

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotFound is returned when a storage key has no object behind it.
var ErrNotFound = errors.New("object not found")

// sniffLen matches the mimetype default read limit.
const sniffLen = 3072

// Object describes a stored blob.
type Object struct {
	Key      string
	Size     int64
	MimeType string
	SHA256   string
}

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, owner string, fileName string, r io.Reader) (Object, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// Presigner is implemented by stores that can hand out time-limited download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
}

// Sniff detects the content type of r from its leading bytes and returns a
// reader that still yields the full content.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]
	mime := mimetype.Detect(head).String()
	return mime, io.MultiReader(bytes.NewReader(head), r), nil
}
