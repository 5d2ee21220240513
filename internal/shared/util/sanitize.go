package util

import (
	"errors"
	"html"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxFileNameLen = 180
	maxExtLen      = 16
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeFileName removes path separators and control characters and rejects traversal patterns.
// Long names are cut on a rune boundary, keeping the extension.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "", errors.New("invalid file name")
	}
	ext := filepath.Ext(s)
	if len(ext) > maxExtLen {
		return "", errors.New("invalid file extension")
	}
	if len(s) > maxFileNameLen {
		cut := maxFileNameLen - len(ext)
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + ext
	}
	return s, nil
}

// FileExt returns the lower-cased extension of name including the dot.
func FileExt(name string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
}

// SanitizeText strips markup from free text and trims surrounding whitespace.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
