package wizard

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"admissions-portal/internal/form"
	"admissions-portal/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const testForm = `
sections:
  - title: Identité
    fields:
      - name: firstName
        rule: required
        message: Le prénom est requis
      - name: email
        rule: required,email
        message: Email invalide
  - title: Projet
    fields:
      - name: motivation
        rule: required,min=10
        message: Trop court
  - title: Documents
    documents: true
slots:
  - name: cv
    label: CV
    extensions: [".pdf"]
    maxBytes: 1024
    required: true
    missingMessage: Le CV est requis
  - name: portfolio
    label: Portfolio
    extensions: [".pdf"]
    maxBytes: 1024
`

type stubSource struct {
	mu   sync.Mutex
	live bool
}

func (s *stubSource) HasLiveTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *stubSource) set(live bool) {
	s.mu.Lock()
	s.live = live
	s.mu.Unlock()
}

func newTestWizard(t *testing.T) (*Wizard, *stubSource) {
	t.Helper()
	def, err := form.Load([]byte(testForm))
	if err != nil {
		t.Fatalf("load form: %v", err)
	}
	w := New(def)
	src := &stubSource{}
	for _, slot := range def.Slots {
		w.RequireDocuments(slot, src)
	}
	return w, src
}

func fillSectionOne(t *testing.T, w *Wizard) {
	t.Helper()
	for k, v := range map[string]string{"firstName": "Ada", "email": "ada@example.com"} {
		if err := w.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
}

func TestAdvanceBlockedByInvalidField(t *testing.T) {
	t.Parallel()
	w, _ := newTestWizard(t)
	if err := w.Set("firstName", "Ada"); err != nil {
		t.Fatal(err)
	}
	if err := w.Set("email", "not-an-email"); err != nil {
		t.Fatal(err)
	}

	if w.Advance() {
		t.Fatalf("expected advance to be blocked")
	}
	if w.Current() != 1 {
		t.Fatalf("expected section 1, got %d", w.Current())
	}
	want := map[string]string{"email": "Email invalide"}
	if diff := cmp.Diff(want, w.Errors(1)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvanceAndRetreatKeepValues(t *testing.T) {
	t.Parallel()
	w, _ := newTestWizard(t)
	var changes []SectionChanged
	w.OnSectionChange(func(ev SectionChanged) { changes = append(changes, ev) })

	fillSectionOne(t, w)
	if !w.Advance() {
		t.Fatalf("expected advance, errors: %v", w.Errors(1))
	}
	if err := w.Set("motivation", "short"); err != nil {
		t.Fatal(err)
	}
	w.Retreat()
	if w.Current() != 1 {
		t.Fatalf("expected section 1 after retreat, got %d", w.Current())
	}
	if w.Value("motivation") != "short" || w.Value("firstName") != "Ada" {
		t.Fatalf("values not kept: %v", w.Snapshot())
	}
	w.Retreat()
	if w.Current() != 1 {
		t.Fatalf("retreat must floor at 1")
	}

	want := []SectionChanged{{From: 1, To: 2}, {From: 2, To: 1}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestSetUnknownField(t *testing.T) {
	t.Parallel()
	w, _ := newTestWizard(t)
	if err := w.Set("nope", "x"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestValidateSectionOnlyChecksItsFields(t *testing.T) {
	t.Parallel()
	w, _ := newTestWizard(t)
	fillSectionOne(t, w)

	if !w.ValidateSection(1) {
		t.Fatalf("section 1 should be valid")
	}
	if w.ValidateSection(2) {
		t.Fatalf("section 2 should be invalid")
	}
	if _, ok := w.Errors(2)["motivation"]; !ok {
		t.Fatalf("expected motivation error, got %v", w.Errors(2))
	}
	if len(w.Errors(1)) != 0 {
		t.Fatalf("section 1 errors changed: %v", w.Errors(1))
	}
	if w.ValidateSection(0) || w.ValidateSection(4) {
		t.Fatalf("out of range sections must not validate")
	}
}

func TestTerminalSectionRequiresDocuments(t *testing.T) {
	t.Parallel()
	w, src := newTestWizard(t)
	fillSectionOne(t, w)
	if err := w.Set("motivation", "assez long pour passer"); err != nil {
		t.Fatal(err)
	}
	if !w.JumpTo(3) {
		t.Fatalf("expected jump to terminal section")
	}
	if !w.IsTerminal() {
		t.Fatalf("expected terminal section")
	}

	if w.ValidateSection(3) {
		t.Fatalf("terminal section must fail without a live cv")
	}
	want := map[string]string{"cv": "Le CV est requis"}
	if diff := cmp.Diff(want, w.Errors(3)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}

	src.set(true)
	if !w.ValidateSection(3) {
		t.Fatalf("terminal section should validate, errors: %v", w.Errors(3))
	}
	if w.Advance() {
		t.Fatalf("advance at terminal section must be a no-op")
	}
	if w.Current() != 3 {
		t.Fatalf("expected to stay on 3, got %d", w.Current())
	}
}

func TestJumpTo(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fill   bool
		target int
		want   bool
		after  int
	}{
		"forward blocked by invalid section": {fill: false, target: 3, want: false, after: 1},
		"forward through valid sections":     {fill: true, target: 3, want: true, after: 3},
		"out of range":                       {fill: true, target: 9, want: false, after: 1},
		"same section":                       {fill: false, target: 1, want: true, after: 1},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			w, _ := newTestWizard(t)
			if tc.fill {
				fillSectionOne(t, w)
				if err := w.Set("motivation", "assez long pour passer"); err != nil {
					t.Fatal(err)
				}
			}
			if got := w.JumpTo(tc.target); got != tc.want {
				t.Fatalf("JumpTo(%d) = %v, want %v", tc.target, got, tc.want)
			}
			if w.Current() != tc.after {
				t.Fatalf("expected section %d, got %d", tc.after, w.Current())
			}
		})
	}
}

func TestJumpBackwardSkipsValidation(t *testing.T) {
	t.Parallel()
	w, _ := newTestWizard(t)
	fillSectionOne(t, w)
	if !w.Advance() {
		t.Fatalf("expected advance")
	}
	if err := w.Set("firstName", ""); err != nil {
		t.Fatal(err)
	}
	if !w.JumpTo(1) {
		t.Fatalf("backward jump must always succeed")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	w, _ := newTestWizard(t)
	fillSectionOne(t, w)
	snap := w.Snapshot()
	snap["firstName"] = "Grace"
	if w.Value("firstName") != "Ada" {
		t.Fatalf("snapshot mutation leaked into wizard")
	}
}

func TestRetreatThenAdvanceRestoresSection(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		start    int
		terminal bool
	}{
		"from section 2":        {start: 2},
		"from terminal section": {start: 3, terminal: true},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			w, src := newTestWizard(t)
			fillSectionOne(t, w)
			if err := w.Set("motivation", "assez long pour passer"); err != nil {
				t.Fatal(err)
			}
			src.set(true)
			if !w.JumpTo(tc.start) {
				t.Fatalf("expected jump to %d", tc.start)
			}
			if w.IsTerminal() != tc.terminal {
				t.Fatalf("IsTerminal() = %v, want %v", w.IsTerminal(), tc.terminal)
			}
			before := w.Snapshot()

			w.Retreat()
			if w.Current() != tc.start-1 {
				t.Fatalf("expected section %d after retreat, got %d", tc.start-1, w.Current())
			}
			if !w.Advance() {
				t.Fatalf("expected advance, errors: %v", w.Errors(tc.start-1))
			}
			if w.Current() != tc.start {
				t.Fatalf("expected section %d restored, got %d", tc.start, w.Current())
			}
			if diff := cmp.Diff(before, w.Snapshot()); diff != "" {
				t.Fatalf("answers changed (-before +after):\n%s", diff)
			}
		})
	}
}
