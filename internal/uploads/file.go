package uploads

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a selected local file handed to a slot.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// LocalFile is a file on disk.
type LocalFile struct {
	path string
	size int64
}

// OpenLocalFile stats path and returns a File for it.
func OpenLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{path: path, size: info.Size()}, nil
}

func (f *LocalFile) Name() string { return filepath.Base(f.path) }
func (f *LocalFile) Size() int64  { return f.size }
func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// MemoryFile is an in-memory File. DeclaredSize overrides len(Data) when set.
type MemoryFile struct {
	FileName     string
	Data         []byte
	DeclaredSize int64
}

func (f *MemoryFile) Name() string { return f.FileName }

func (f *MemoryFile) Size() int64 {
	if f.DeclaredSize > 0 {
		return f.DeclaredSize
	}
	return int64(len(f.Data))
}

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}
