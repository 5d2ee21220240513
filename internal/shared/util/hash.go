package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// HashUserKey returns a filesystem-safe identifier for a user ID.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DigestReader counts and hashes everything read through it.
type DigestReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewDigestReader wraps r.
func NewDigestReader(r io.Reader) *DigestReader {
	return &DigestReader{r: r, h: sha256.New()}
}

func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// Size returns the number of bytes read so far.
func (d *DigestReader) Size() int64 { return d.n }

// SHA256 returns the hex digest of the bytes read so far.
func (d *DigestReader) SHA256() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
