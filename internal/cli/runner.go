package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"admissions-portal/internal/apiclient"
	"admissions-portal/internal/form"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/submission"
	"admissions-portal/internal/uploads"
	"admissions-portal/internal/wizard"
)

const (
	actionNext    = "Section suivante"
	actionBack    = "Section précédente"
	actionJump    = "Aller à une section"
	actionEdit    = "Modifier cette section"
	actionSummary = "Récapitulatif"
	actionSubmit  = "Envoyer ma candidature"
	actionQuit    = "Quitter"

	docAdd      = "Ajouter un fichier"
	docDismiss  = "Masquer l'erreur :"
	docContinue = "Continuer"
)

// API is the server side the runner talks to.
type API interface {
	submission.API
	MyApplication(ctx context.Context) (apiclient.Application, error)
}

// Options tunes the pipeline behind the runner.
type Options struct {
	// Stage defers transfers until submission instead of starting them on selection.
	Stage               bool
	UploadMaxConcurrent int
	UploadTimeout       time.Duration
	SubmitParallelism   int
}

// Runner walks an applicant through the form and submits it.
type Runner struct {
	driver   PromptDriver
	api      API
	def      *form.Definition
	wizard   *wizard.Wizard
	managers []*uploads.Manager
	orch     *submission.Orchestrator
	stage    bool
	visited  map[int]bool
	progress *progressPrinter
}

// New wires a wizard, one upload manager per slot and an orchestrator.
func New(def *form.Definition, api API, transport uploads.Transport, driver PromptDriver, opts Options) *Runner {
	wz := wizard.New(def)
	maxConcurrent := int64(opts.UploadMaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	limiter := semaphore.NewWeighted(maxConcurrent)
	fields := func() map[string]string {
		snap := wz.Snapshot()
		return map[string]string{"firstName": snap["firstName"], "lastName": snap["lastName"]}
	}

	r := &Runner{
		driver:   driver,
		api:      api,
		def:      def,
		wizard:   wz,
		stage:    opts.Stage,
		visited:  make(map[int]bool),
		progress: &progressPrinter{driver: driver, shown: make(map[string]int)},
	}
	slots := make([]submission.Slot, 0, len(def.Slots))
	for _, slot := range def.Slots {
		m := uploads.NewManager(slot, transport, uploads.Options{
			Limiter:         limiter,
			TransferTimeout: opts.UploadTimeout,
			Fields:          fields,
		})
		m.Subscribe(r.progress.listen)
		wz.RequireDocuments(slot, m)
		r.managers = append(r.managers, m)
		slots = append(slots, m)
	}
	r.orch = submission.New(api, wz, slots, opts.SubmitParallelism)
	return r
}

// Wizard exposes the form state.
func (r *Runner) Wizard() *wizard.Wizard { return r.wizard }

// Close cancels transfers still running.
func (r *Runner) Close() {
	for _, m := range r.managers {
		m.Close()
	}
}

// Run drives the interactive session until the application is sent or the
// applicant quits.
func (r *Runner) Run(ctx context.Context) (submission.Outcome, error) {
	for {
		idx := r.wizard.Current()
		if !r.visited[idx] {
			r.visited[idx] = true
			if err := r.fillSection(ctx, idx); err != nil {
				return submission.Outcome{}, err
			}
		}

		actions := r.actions()
		choice, err := r.driver.Select(ctx, SelectConfig{
			Message: fmt.Sprintf("Section %d/%d", idx, r.wizard.SectionCount()),
			Options: actions,
		})
		if err != nil {
			return submission.Outcome{}, err
		}
		if choice < 0 || choice >= len(actions) {
			continue
		}

		switch actions[choice] {
		case actionNext:
			if !r.wizard.Advance() {
				r.showErrors(ctx, idx)
			}
		case actionBack:
			r.wizard.Retreat()
		case actionJump:
			if err := r.jump(ctx); err != nil {
				return submission.Outcome{}, err
			}
		case actionEdit:
			if err := r.fillSection(ctx, idx); err != nil {
				return submission.Outcome{}, err
			}
		case actionSummary:
			r.printSummary(ctx)
		case actionSubmit:
			out, err := r.submitWithRetry(ctx)
			if errors.Is(err, submission.ErrNotReady) {
				r.showErrors(ctx, idx)
				continue
			}
			return out, err
		case actionQuit:
			return submission.Outcome{}, ErrAborted
		}
	}
}

// Apply fills the form from an answers file and submits once.
func (r *Runner) Apply(ctx context.Context, af AnswersFile) (submission.Outcome, error) {
	names := make([]string, 0, len(af.Answers))
	for name := range af.Answers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.wizard.Set(name, af.Answers[name]); err != nil {
			return submission.Outcome{}, fmt.Errorf("answer %s: %w", name, err)
		}
	}
	for name := range af.Documents {
		if _, ok := r.def.Slot(name); !ok {
			return submission.Outcome{}, fmt.Errorf("unknown document slot %s", name)
		}
	}
	for _, m := range r.managers {
		paths := af.Documents[m.Slot().Name]
		if len(paths) == 0 {
			continue
		}
		files := make([]uploads.File, 0, len(paths))
		for _, p := range paths {
			f, err := uploads.OpenLocalFile(p)
			if err != nil {
				return submission.Outcome{}, err
			}
			files = append(files, f)
		}
		if err := r.add(m, files); err != nil {
			return submission.Outcome{}, fmt.Errorf("%s: %w", m.Slot().Name, err)
		}
	}

	last := r.wizard.SectionCount()
	if !r.wizard.JumpTo(last) {
		r.showFirstInvalid(ctx, last)
		return submission.Outcome{}, fmt.Errorf("%w: incomplete answers", submission.ErrNotReady)
	}
	out, err := r.submit(ctx)
	if errors.Is(err, submission.ErrNotReady) {
		r.showErrors(ctx, last)
	}
	return out, err
}

func (r *Runner) actions() []string {
	idx, n := r.wizard.Current(), r.wizard.SectionCount()
	var out []string
	if idx < n {
		out = append(out, actionNext)
	}
	if idx > 1 {
		out = append(out, actionBack)
	}
	out = append(out, actionJump, actionEdit, actionSummary)
	if r.wizard.IsTerminal() {
		out = append(out, actionSubmit)
	}
	return append(out, actionQuit)
}

func (r *Runner) fillSection(ctx context.Context, idx int) error {
	sec, ok := r.def.Section(idx)
	if !ok {
		return fmt.Errorf("unknown section %d", idx)
	}
	r.info(ctx, fmt.Sprintf("Section %d/%d : %s", idx, r.wizard.SectionCount(), sec.Title))
	for _, f := range sec.Fields {
		value, err := r.askField(ctx, f)
		if err != nil {
			return err
		}
		if err := r.wizard.Set(f.Name, value); err != nil {
			return err
		}
		if msg, ok := r.def.ValidateField(f.Name, value); !ok {
			r.info(ctx, "  ! "+msg)
		}
	}
	if sec.Documents {
		for _, m := range r.managers {
			if err := r.fillSlot(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) askField(ctx context.Context, f form.Field) (string, error) {
	message := f.Label
	if message == "" {
		message = f.Name
	}
	if f.Required() {
		message += " *"
	}
	current := r.wizard.Value(f.Name)

	if opts := r.def.OptionsFor(f.Name); len(opts) > 0 {
		labels := make([]string, len(opts))
		def := -1
		for i, o := range opts {
			labels[i] = o.Text()
			if o.Value == current {
				def = i
			}
		}
		i, err := r.driver.Select(ctx, SelectConfig{Message: message, Options: labels, DefaultIndex: def, PageSize: 12})
		if err != nil {
			return "", err
		}
		if i < 0 || i >= len(opts) {
			return current, nil
		}
		return opts[i].Value, nil
	}
	if f.Multiline {
		return r.driver.TextArea(ctx, InputConfig{Message: message, Default: current})
	}
	return r.driver.Input(ctx, InputConfig{Message: message, Default: current})
}

func (r *Runner) fillSlot(ctx context.Context, m *uploads.Manager) error {
	slot := m.Slot()
	help := fmt.Sprintf("%s, %s max", strings.Join(slot.Extensions, ", "), slot.MaxSizeText())
	for {
		options := []string{docAdd}
		actions := []func() error{func() error { return r.addFromPrompt(ctx, m) }}
		for _, t := range m.Snapshot() {
			id := t.ID
			if t.State == uploads.StateFailed {
				options = append(options, fmt.Sprintf("%s %s", docDismiss, t.FileName))
				actions = append(actions, func() error {
					if err := m.DismissError(id); err != nil {
						r.info(ctx, "  ! "+err.Error())
					}
					return nil
				})
			}
			options = append(options, fmt.Sprintf("Retirer %s (%s)", t.FileName, taskStateText(t)))
			actions = append(actions, func() error {
				if err := m.Remove(ctx, id); err != nil {
					r.info(ctx, "  ! "+err.Error())
				}
				return nil
			})
		}
		options = append(options, docContinue)

		i, err := r.driver.Select(ctx, SelectConfig{Message: fmt.Sprintf("%s (%s)", slot.Label, help), Options: options})
		if err != nil {
			return err
		}
		if i < 0 || i >= len(actions) {
			return nil
		}
		if err := actions[i](); err != nil {
			return err
		}
	}
}

func (r *Runner) addFromPrompt(ctx context.Context, m *uploads.Manager) error {
	path, err := r.driver.Input(ctx, InputConfig{Message: fmt.Sprintf("Chemin du fichier (%s)", m.Slot().Label)})
	if err != nil {
		return err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	f, err := uploads.OpenLocalFile(path)
	if err != nil {
		r.info(ctx, "  ! Fichier introuvable : "+path)
		return nil
	}
	if err := r.add(m, []uploads.File{f}); err != nil {
		r.info(ctx, "  ! "+err.Error())
	}
	return nil
}

func (r *Runner) add(m *uploads.Manager, files []uploads.File) error {
	if r.stage {
		return m.Stage(files)
	}
	return m.Accept(files)
}

func (r *Runner) jump(ctx context.Context) error {
	titles := make([]string, r.wizard.SectionCount())
	for i := range titles {
		sec, _ := r.def.Section(i + 1)
		titles[i] = fmt.Sprintf("%d. %s", i+1, sec.Title)
	}
	i, err := r.driver.Select(ctx, SelectConfig{Message: actionJump, Options: titles, DefaultIndex: r.wizard.Current() - 1})
	if err != nil {
		return err
	}
	if i < 0 {
		return nil
	}
	if !r.wizard.JumpTo(i + 1) {
		r.showFirstInvalid(ctx, i+1)
	}
	return nil
}

// showFirstInvalid prints the errors of the first section before target
// that blocked a forward jump.
func (r *Runner) showFirstInvalid(ctx context.Context, target int) {
	for i := 1; i < target; i++ {
		if len(r.wizard.Errors(i)) > 0 {
			r.showErrors(ctx, i)
			return
		}
	}
}

func (r *Runner) showErrors(ctx context.Context, idx int) {
	errs := r.wizard.Errors(idx)
	if len(errs) == 0 {
		return
	}
	sec, _ := r.def.Section(idx)
	r.info(ctx, fmt.Sprintf("Section %d (%s) incomplète :", idx, sec.Title))
	for _, name := range r.def.FieldNames() {
		if msg, ok := errs[name]; ok {
			r.info(ctx, "  ! "+msg)
		}
	}
	for _, slot := range r.def.Slots {
		if msg, ok := errs[slot.Name]; ok {
			r.info(ctx, "  ! "+msg)
		}
	}
}

func (r *Runner) printSummary(ctx context.Context) {
	answers := r.wizard.Snapshot()
	for i := 1; i <= r.wizard.SectionCount(); i++ {
		sec, _ := r.def.Section(i)
		r.info(ctx, fmt.Sprintf("%d. %s", i, sec.Title))
		for _, f := range sec.Fields {
			value := answers[f.Name]
			if value == "" {
				value = "-"
			}
			r.info(ctx, fmt.Sprintf("  %s : %s", f.Label, value))
		}
		if !sec.Documents {
			continue
		}
		for _, m := range r.managers {
			tasks := m.Snapshot()
			if len(tasks) == 0 {
				r.info(ctx, fmt.Sprintf("  %s : -", m.Slot().Label))
				continue
			}
			for _, t := range tasks {
				r.info(ctx, fmt.Sprintf("  %s : %s (%s, %s)", m.Slot().Label, t.FileName, uploads.FormatSize(t.Size), taskStateText(t)))
			}
		}
	}
}

func (r *Runner) submitWithRetry(ctx context.Context) (submission.Outcome, error) {
	for {
		out, err := r.submit(ctx)
		if err != nil || out.Status == submission.StatusSucceeded {
			return out, err
		}
		retry, err := r.driver.Confirm(ctx, ConfirmConfig{Message: "Réessayer l'envoi ?", Default: true})
		if err != nil || !retry {
			return out, err
		}
	}
}

func (r *Runner) submit(ctx context.Context) (submission.Outcome, error) {
	r.info(ctx, "Envoi de la candidature...")
	out, err := r.orch.Submit(ctx)
	if err != nil {
		return out, err
	}
	if out.Status != submission.StatusSucceeded {
		r.info(ctx, out.Message)
		return out, nil
	}

	r.info(ctx, fmt.Sprintf("Candidature envoyée (référence %s).", out.ApplicationID))
	if len(out.MissingSlots) > 0 {
		labels := make([]string, 0, len(out.MissingSlots))
		for _, name := range out.MissingSlots {
			if slot, ok := r.def.Slot(name); ok {
				labels = append(labels, slot.Label)
			} else {
				labels = append(labels, name)
			}
		}
		r.info(ctx, "Documents manquants : "+strings.Join(labels, ", "))
	}
	if app, err := r.api.MyApplication(ctx); err == nil {
		r.info(ctx, "Statut : "+app.Status)
	} else {
		telemetry.Warn("cli.status_unavailable", map[string]any{"error": err.Error()})
	}
	return out, nil
}

func (r *Runner) info(ctx context.Context, msg string) {
	if err := r.driver.Info(ctx, msg); err != nil {
		telemetry.Debug("cli.info_failed", map[string]any{"error": err.Error()})
	}
}

func taskStateText(t uploads.Task) string {
	switch t.State {
	case uploads.StateSucceeded:
		return "envoyé"
	case uploads.StateFailed:
		return "échec : " + t.Reason
	}
	if !t.Started {
		return "en attente d'envoi"
	}
	return fmt.Sprintf("%d%%", int(t.Progress*100))
}

// progressPrinter turns task events into one line per quarter of progress.
type progressPrinter struct {
	mu     sync.Mutex
	driver PromptDriver
	shown  map[string]int
}

func (p *progressPrinter) listen(ev uploads.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var line string
	switch ev.Kind {
	case uploads.EventProgress:
		quarter := int(ev.Progress * 4)
		if quarter <= p.shown[ev.TaskID] || quarter >= 4 {
			return
		}
		p.shown[ev.TaskID] = quarter
		line = fmt.Sprintf("  [%s] %s %d%%", ev.Slot, ev.FileName, quarter*25)
	case uploads.EventSucceeded:
		delete(p.shown, ev.TaskID)
		line = fmt.Sprintf("  [%s] %s envoyé", ev.Slot, ev.FileName)
	case uploads.EventFailed:
		delete(p.shown, ev.TaskID)
		line = fmt.Sprintf("  [%s] %s : %s", ev.Slot, ev.FileName, ev.Reason)
	case uploads.EventRemoved:
		delete(p.shown, ev.TaskID)
		line = fmt.Sprintf("  [%s] %s retiré", ev.Slot, ev.FileName)
	default:
		return
	}
	_ = p.driver.Info(context.Background(), line)
}
