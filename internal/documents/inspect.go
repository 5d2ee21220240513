package documents

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

const mimePDF = "application/pdf"

// pdfPageCount opens data as a PDF and returns its page count.
func pdfPageCount(data []byte) (n int, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	n = reader.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return n, nil
}
