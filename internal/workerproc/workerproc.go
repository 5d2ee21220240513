// Package workerproc turns application events read from the queue into
// notices for the applicant.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"admissions-portal/internal/applications"
	"admissions-portal/internal/queue"
	"admissions-portal/internal/shared/telemetry"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a payload that cannot be processed as sent.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingApplicationID indicates a message without an application id.
type ErrMissingApplicationID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingApplicationID) Error() string { return "missing application id" }

// ErrProcess indicates processing failed after successful parsing.
// Unrecoverable failures will not succeed on redelivery.
type ErrProcess struct {
	ApplicationID string
	RequestID     string
	Unrecoverable bool
	Err           error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process event"
	}
	return "process event: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if msg.Version > queue.MessageVersion {
		return msg, meta, ErrDecode{Meta: meta, Err: fmt.Errorf("unsupported version %d", msg.Version)}
	}
	if strings.TrimSpace(msg.ApplicationID) == "" {
		return msg, meta, ErrMissingApplicationID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Applications reads the record an event refers to.
type Applications interface {
	Get(ctx context.Context, id string) (applications.View, error)
}

// Notice is a message for the applicant.
type Notice struct {
	ApplicationID string
	Event         queue.Event
	To            string
	Subject       string
	Body          string
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notice) error {
	telemetry.Info("notice.sent", map[string]any{
		"application_id": n.ApplicationID,
		"event":          string(n.Event),
		"to":             n.To,
		"subject":        n.Subject,
	})
	return nil
}

// Processor handles one decoded event.
type Processor struct {
	Apps     Applications
	Notifier Notifier
	// SlotLabels maps slot names to the labels used in notices.
	SlotLabels map[string]string
}

// Handle loads the application and sends the notice for the event, if any.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	if p == nil || p.Apps == nil || p.Notifier == nil {
		return errors.New("event processor not configured")
	}
	view, err := p.Apps.Get(ctx, msg.ApplicationID)
	if err != nil {
		return ErrProcess{
			ApplicationID: msg.ApplicationID,
			RequestID:     msg.RequestID,
			Unrecoverable: errors.Is(err, applications.ErrNotFound),
			Err:           err,
		}
	}
	notice, ok := p.compose(msg, view)
	if !ok {
		telemetry.Debug("worker.event.no_notice", map[string]any{"application_id": msg.ApplicationID, "event": string(msg.Event)})
		return nil
	}
	if notice.To == "" {
		return ErrProcess{ApplicationID: msg.ApplicationID, RequestID: msg.RequestID, Unrecoverable: true, Err: errors.New("application has no email")}
	}
	if err := p.Notifier.Notify(ctx, notice); err != nil {
		return ErrProcess{ApplicationID: msg.ApplicationID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

func (p *Processor) compose(msg queue.Message, view applications.View) (Notice, bool) {
	n := Notice{ApplicationID: view.ID, Event: msg.Event, To: view.Answers["email"]}
	greeting := "Bonjour"
	if first := view.Answers["firstName"]; first != "" {
		greeting += " " + first
	}

	switch msg.Event {
	case queue.EventApplicationCreated:
		n.Subject = "Nous avons bien reçu votre candidature"
		n.Body = greeting + ",\n\nVotre candidature est enregistrée. Elle sera complète dès réception de vos documents."
	case queue.EventDocumentsAttached:
		if len(view.Missing) == 0 {
			n.Subject = "Votre dossier de candidature est complet"
			n.Body = greeting + ",\n\nVotre dossier de candidature a bien été soumis. Il sera étudié par notre équipe."
			break
		}
		labels := make([]string, 0, len(view.Missing))
		for _, name := range view.Missing {
			if label, ok := p.SlotLabels[name]; ok {
				labels = append(labels, label)
			} else {
				labels = append(labels, name)
			}
		}
		n.Subject = "Des documents manquent à votre dossier"
		n.Body = greeting + ",\n\nVotre candidature est enregistrée mais il manque : " + strings.Join(labels, ", ") + "."
	case queue.EventStatusChanged:
		switch applications.Status(msg.Status) {
		case applications.StatusAccepted:
			n.Subject = "Votre candidature est acceptée"
			n.Body = greeting + ",\n\nNous avons le plaisir de vous annoncer que votre candidature est acceptée."
		case applications.StatusRejected:
			n.Subject = "Réponse à votre candidature"
			n.Body = greeting + ",\n\nNous sommes au regret de ne pas pouvoir donner suite à votre candidature."
		default:
			return Notice{}, false
		}
	default:
		return Notice{}, false
	}
	return n, true
}
