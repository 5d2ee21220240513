package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current payload version.
const MessageVersion = 1

// Event names an application lifecycle change.
type Event string

const (
	EventApplicationCreated Event = "application_created"
	EventDocumentsAttached  Event = "documents_attached"
	EventStatusChanged      Event = "status_changed"
)

// Message is the payload sent to downstream queue consumers.
type Message struct {
	ApplicationID string `json:"applicationId"`
	Event         Event  `json:"event"`
	Status        string `json:"status,omitempty"`
	RequestID     string `json:"requestId"`
	EnqueuedAt    string `json:"enqueuedAt"`
	Version       int    `json:"version"`
}

// NewMessage stamps an event for an application.
func NewMessage(applicationID string, event Event, status, requestID string, now time.Time) Message {
	return Message{
		ApplicationID: applicationID,
		Event:         event,
		Status:        status,
		RequestID:     requestID,
		EnqueuedAt:    now.UTC().Format(time.RFC3339),
		Version:       MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
