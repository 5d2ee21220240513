// Package wizard gates progression through the ordered sections of the
// application form.
//
// Advancing validates the current section; going back never re-validates,
// since a section that was valid when left stays valid and its values are
// kept as entered.
package wizard

import (
	"errors"
	"fmt"
	"sync"

	"admissions-portal/internal/form"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/uploads"
)

// ErrUnknownField is returned when setting a field the form does not declare.
var ErrUnknownField = errors.New("unknown field")

// AnswerSet maps field names to values.
type AnswerSet map[string]string

// Clone returns an independent copy.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// DocumentSource reports whether a slot currently holds a usable document.
// *uploads.Manager satisfies it.
type DocumentSource interface {
	HasLiveTask() bool
}

// SectionChanged is pushed whenever the active section moves.
type SectionChanged struct {
	From int
	To   int
}

// Listener receives section changes.
type Listener func(SectionChanged)

type docRequirement struct {
	slot   uploads.Slot
	source DocumentSource
}

// Wizard owns the active section index and the answer set.
type Wizard struct {
	def *form.Definition

	mu        sync.Mutex
	current   int
	answers   AnswerSet
	errs      map[int]map[string]string
	docs      []docRequirement
	listeners []Listener
}

// New starts a wizard on section 1.
func New(def *form.Definition) *Wizard {
	return &Wizard{
		def:     def,
		current: 1,
		answers: make(AnswerSet),
		errs:    make(map[int]map[string]string),
	}
}

// RequireDocuments registers the document source checked for slot when a
// documents section is validated. Optional slots are ignored.
func (w *Wizard) RequireDocuments(slot uploads.Slot, source DocumentSource) {
	if !slot.Required || source == nil {
		return
	}
	w.mu.Lock()
	w.docs = append(w.docs, docRequirement{slot: slot, source: source})
	w.mu.Unlock()
}

// OnSectionChange registers a listener.
func (w *Wizard) OnSectionChange(l Listener) {
	if l == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// Definition returns the form the wizard walks.
func (w *Wizard) Definition() *form.Definition { return w.def }

// Current returns the active 1-based section index.
func (w *Wizard) Current() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// SectionCount returns N.
func (w *Wizard) SectionCount() int { return w.def.SectionCount() }

// IsTerminal reports whether the active section is the last one.
func (w *Wizard) IsTerminal() bool {
	return w.Current() == w.def.SectionCount()
}

// Set stores a value for a declared field.
func (w *Wizard) Set(field, value string) error {
	if _, ok := w.def.Field(field); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	w.mu.Lock()
	w.answers[field] = value
	w.mu.Unlock()
	return nil
}

// Value returns the current value of a field.
func (w *Wizard) Value(field string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.answers[field]
}

// Snapshot returns a copy of the current, possibly partial answers.
func (w *Wizard) Snapshot() AnswerSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.answers.Clone()
}

// Errors returns a copy of the field→message map of a section.
func (w *Wizard) Errors(index int) map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.errs[index]))
	for k, v := range w.errs[index] {
		out[k] = v
	}
	return out
}

// ValidateSection runs the validators of index's fields only and replaces
// that section's error map. Documents sections also require every registered
// slot to hold a task that has not failed.
func (w *Wizard) ValidateSection(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validateLocked(index)
}

func (w *Wizard) validateLocked(index int) bool {
	sec, ok := w.def.Section(index)
	if !ok {
		return false
	}
	errs := make(map[string]string)
	for _, f := range sec.Fields {
		if msg, ok := w.def.ValidateField(f.Name, w.answers[f.Name]); !ok {
			errs[f.Name] = msg
		}
	}
	if sec.Documents {
		for _, d := range w.docs {
			if !d.source.HasLiveTask() {
				errs[d.slot.Name] = d.slot.MissingText()
			}
		}
	}
	w.errs[index] = errs
	return len(errs) == 0
}

// Advance moves to the next section when the current one validates.
// At the terminal section it does nothing and returns false.
func (w *Wizard) Advance() bool {
	w.mu.Lock()
	if w.current >= w.def.SectionCount() || !w.validateLocked(w.current) {
		from := w.current
		w.mu.Unlock()
		telemetry.Debug("wizard.advance_blocked", map[string]any{"section": from})
		return false
	}
	from := w.current
	w.current++
	ev, listeners := SectionChanged{From: from, To: w.current}, w.listeners
	w.mu.Unlock()

	notify(listeners, ev)
	return true
}

// Retreat moves back one section, floored at 1, without validating.
func (w *Wizard) Retreat() {
	w.mu.Lock()
	if w.current <= 1 {
		w.mu.Unlock()
		return
	}
	from := w.current
	w.current--
	ev, listeners := SectionChanged{From: from, To: w.current}, w.listeners
	w.mu.Unlock()

	notify(listeners, ev)
}

// JumpTo moves directly to index. Going back is free; going forward requires
// every section before index to validate, and stops at the first that does not.
func (w *Wizard) JumpTo(index int) bool {
	w.mu.Lock()
	if index < 1 || index > w.def.SectionCount() {
		w.mu.Unlock()
		return false
	}
	from := w.current
	if index > from {
		for i := 1; i < index; i++ {
			if !w.validateLocked(i) {
				w.mu.Unlock()
				return false
			}
		}
	}
	if index == from {
		w.mu.Unlock()
		return true
	}
	w.current = index
	ev, listeners := SectionChanged{From: from, To: index}, w.listeners
	w.mu.Unlock()

	notify(listeners, ev)
	return true
}

func notify(listeners []Listener, ev SectionChanged) {
	for _, l := range listeners {
		l(ev)
	}
}
