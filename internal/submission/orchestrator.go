// Package submission sequences the three calls of an application submission:
// create the record, upload the documents, attach their references.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"admissions-portal/internal/apiclient"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/uploads"
	"admissions-portal/internal/wizard"
)

var (
	ErrNotReady         = errors.New("application is not ready to submit")
	ErrAlreadySubmitted = errors.New("application already submitted")
	ErrInProgress       = errors.New("submission already in progress")
)

const defaultParallelism = 2

// Status is the terminal outcome of one Submit call.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusCreationFailed Status = "creation_failed"
	StatusAttachFailed   Status = "attach_failed"
)

// Outcome reports how a submission ended.
type Outcome struct {
	Status        Status
	ApplicationID string
	// Message is set for failures and is fit for display.
	Message string
	Refs    map[string][]uploads.RemoteRef
	// MissingSlots lists slots that ended without a stored document.
	MissingSlots []string
}

// API is the part of the applications API the orchestrator calls.
type API interface {
	CreateApplication(ctx context.Context, answers map[string]string) (apiclient.Application, error)
	AttachDocuments(ctx context.Context, applicationID string, req apiclient.AttachRequest) (apiclient.Application, error)
}

// Form is the wizard state the orchestrator reads.
type Form interface {
	Current() int
	IsTerminal() bool
	ValidateSection(index int) bool
	Snapshot() wizard.AnswerSet
}

// Slot is one upload manager.
type Slot interface {
	Slot() uploads.Slot
	Settle(ctx context.Context) ([]uploads.RemoteRef, error)
}

// Listener receives the terminal outcome of each Submit.
type Listener func(Outcome)

// Orchestrator runs submissions for one applicant session.
type Orchestrator struct {
	api         API
	form        Form
	slots       []Slot
	parallelism int

	mu            sync.Mutex
	applicationID string
	submitted     bool
	running       bool
	listeners     []Listener
}

// New builds an orchestrator. parallelism bounds how many slots settle at once.
func New(api API, form Form, slots []Slot, parallelism int) *Orchestrator {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Orchestrator{api: api, form: form, slots: slots, parallelism: parallelism}
}

// OnOutcome registers a listener.
func (o *Orchestrator) OnOutcome(l Listener) {
	if l == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, l)
	o.mu.Unlock()
}

// ApplicationID returns the id of the created record, empty before creation.
func (o *Orchestrator) ApplicationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.applicationID
}

// Submit runs create, upload and attach in order. Remote failures are
// reported through the Outcome; the error is reserved for calls that never
// reached the network.
func (o *Orchestrator) Submit(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	switch {
	case o.submitted:
		o.mu.Unlock()
		return Outcome{}, ErrAlreadySubmitted
	case o.running:
		o.mu.Unlock()
		return Outcome{}, ErrInProgress
	}
	o.running = true
	appID := o.applicationID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if !o.form.IsTerminal() {
		return Outcome{}, fmt.Errorf("%w: not on the last section", ErrNotReady)
	}
	if !o.form.ValidateSection(o.form.Current()) {
		return Outcome{}, fmt.Errorf("%w: last section is invalid", ErrNotReady)
	}

	if appID == "" {
		app, err := o.api.CreateApplication(ctx, o.form.Snapshot())
		if err != nil {
			telemetry.Warn("submission.create_failed", map[string]any{"error": err.Error()})
			return o.finish(Outcome{Status: StatusCreationFailed, Message: userMessage(err)}), nil
		}
		appID = app.ID
		o.mu.Lock()
		o.applicationID = appID
		o.mu.Unlock()
		telemetry.Info("submission.created", map[string]any{"application_id": appID})
	} else {
		telemetry.Info("submission.retry", map[string]any{"application_id": appID})
	}

	refs := o.settle(ctx)

	names := make([]string, 0, len(o.slots))
	var missing []string
	for _, s := range o.slots {
		name := s.Slot().Name
		names = append(names, name)
		if len(refs[name]) == 0 {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	if _, err := o.api.AttachDocuments(ctx, appID, apiclient.NewAttachRequest(names, refs)); err != nil {
		telemetry.Warn("submission.attach_failed", map[string]any{
			"application_id": appID,
			"error":          err.Error(),
		})
		return o.finish(Outcome{
			Status:        StatusAttachFailed,
			ApplicationID: appID,
			Message:       apiclient.MessageNetwork,
			Refs:          refs,
			MissingSlots:  missing,
		}), nil
	}

	o.mu.Lock()
	o.submitted = true
	o.mu.Unlock()
	telemetry.Info("submission.succeeded", map[string]any{
		"application_id": appID,
		"missing_slots":  missing,
	})
	return o.finish(Outcome{
		Status:        StatusSucceeded,
		ApplicationID: appID,
		Refs:          refs,
		MissingSlots:  missing,
	}), nil
}

// settle waits for every slot concurrently. A slot that fails to settle is
// reported missing; it never cancels the others.
func (o *Orchestrator) settle(ctx context.Context) map[string][]uploads.RemoteRef {
	var (
		mu   sync.Mutex
		refs = make(map[string][]uploads.RemoteRef, len(o.slots))
		g    errgroup.Group
	)
	g.SetLimit(o.parallelism)
	for _, s := range o.slots {
		s := s
		g.Go(func() error {
			got, err := s.Settle(ctx)
			if err != nil {
				telemetry.Warn("submission.slot_unsettled", map[string]any{
					"slot":  s.Slot().Name,
					"error": err.Error(),
				})
				return nil
			}
			mu.Lock()
			refs[s.Slot().Name] = got
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return refs
}

func (o *Orchestrator) finish(out Outcome) Outcome {
	o.mu.Lock()
	listeners := o.listeners
	o.mu.Unlock()
	for _, l := range listeners {
		l(out)
	}
	return out
}

func userMessage(err error) string {
	var um uploads.UserMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return apiclient.MessageNetwork
}
