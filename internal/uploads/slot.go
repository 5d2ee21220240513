package uploads

import (
	"errors"
	"fmt"
	"strings"

	"admissions-portal/internal/shared/util"
)

// Slot is a named document requirement. Slots are built once per form and
// never mutated afterwards.
type Slot struct {
	Name           string   `yaml:"name"`
	Label          string   `yaml:"label"`
	Endpoint       string   `yaml:"endpoint"`
	Extensions     []string `yaml:"extensions"`
	MimeTypes      []string `yaml:"mimeTypes"`
	MaxBytes       int64    `yaml:"maxBytes"`
	Multiple       bool     `yaml:"multiple"`
	Required       bool     `yaml:"required"`
	MissingMessage string   `yaml:"missingMessage"`
}

// Validate reports configuration mistakes in a slot definition.
func (s Slot) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("slot name is required")
	}
	if s.MaxBytes <= 0 {
		return fmt.Errorf("slot %s: maxBytes must be positive", s.Name)
	}
	if len(s.Extensions) == 0 {
		return fmt.Errorf("slot %s: at least one extension is required", s.Name)
	}
	for _, ext := range s.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("slot %s: extension %q must start with a dot", s.Name, ext)
		}
	}
	return nil
}

// AcceptsName reports whether the file extension is allowed in the slot.
func (s Slot) AcceptsName(fileName string) bool {
	ext := util.FileExt(fileName)
	for _, allowed := range s.Extensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// AcceptsMime reports whether a sniffed content type is allowed in the slot.
// Slots without a MIME list accept anything.
func (s Slot) AcceptsMime(mime string) bool {
	if len(s.MimeTypes) == 0 {
		return true
	}
	base := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	for _, allowed := range s.MimeTypes {
		if strings.EqualFold(allowed, base) {
			return true
		}
	}
	return false
}

// MissingText is the wizard-level message shown when a required slot is empty.
func (s Slot) MissingText() string {
	if s.MissingMessage != "" {
		return s.MissingMessage
	}
	return fmt.Sprintf("%s est requis", s.Label)
}

// MaxSizeText renders the slot limit, e.g. "5 Mo".
func (s Slot) MaxSizeText() string {
	return maxSizeLabel(s.MaxBytes)
}

// FormatSize renders a byte count the way the upload widgets display it.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d o", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.0f Ko", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f Mo", float64(n)/(1024*1024))
	}
}

func maxSizeLabel(n int64) string {
	mb := float64(n) / (1024 * 1024)
	if mb == float64(int64(mb)) {
		return fmt.Sprintf("%d Mo", int64(mb))
	}
	return FormatSize(n)
}
