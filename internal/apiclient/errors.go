package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fallback messages shown when the server gives no usable error text.
const (
	MessageCreateFailed = "Erreur lors de la soumission."
	MessageUploadFailed = "Erreur lors de l'upload"
	MessageNetwork      = "Erreur réseau. Veuillez réessayer."
)

const maxErrorBody = 64 * 1024

// APIError is a non-2xx answer from the API.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// UserMessage returns the server's message, or a generic one for the call.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Op {
	case opCreate:
		return MessageCreateFailed
	case opUpload:
		return MessageUploadFailed
	default:
		return MessageNetwork
	}
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// decodeError accepts both {"error":"msg"} and {"error":{"code","message"}}.
func decodeError(op string, resp *http.Response) *APIError {
	apiErr := &APIError{Op: op, Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return apiErr
	}
	var flat string
	if err := json.Unmarshal(envelope.Error, &flat); err == nil {
		apiErr.Message = strings.TrimSpace(flat)
		return apiErr
	}
	var nested struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil {
		apiErr.Code = nested.Code
		apiErr.Message = strings.TrimSpace(nested.Message)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(envelope.Message)
	}
	return apiErr
}
