package uploads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"admissions-portal/internal/shared/telemetry"
)

const (
	defaultMaxConcurrent = 4
	orphanDeleteTimeout  = 30 * time.Second
)

// Options tunes a Manager.
type Options struct {
	// MaxConcurrent caps simultaneous transfers when Limiter is nil.
	MaxConcurrent int64
	// Limiter may be shared between managers to cap transfers globally.
	Limiter *semaphore.Weighted
	// TransferTimeout bounds a single transfer; zero means no deadline.
	TransferTimeout time.Duration
	// Fields supplies extra multipart fields sent with every upload.
	Fields func() map[string]string
}

// Manager owns the upload tasks of one slot. Callers only ever see copies.
type Manager struct {
	slot      Slot
	transport Transport
	limiter   *semaphore.Weighted
	timeout   time.Duration
	fields    func() map[string]string

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	tasks     map[string]*taskState
	order     []string
	slotErr   string
	listeners []Listener
	closed    bool
}

type taskState struct {
	task      Task
	file      File
	cancel    context.CancelFunc
	done      chan struct{}
	abandoned bool
	removing  bool

	// emitMu guards the event queue below. Listeners run without it so they
	// may call back into the Manager.
	emitMu   sync.Mutex
	terminal bool
	last     float64
	queue    []queuedEvent
	draining bool
}

type queuedEvent struct {
	listeners []Listener
	ev        Event
}

// enqueueLocked appends ev and reports whether the caller must drain.
// Requires emitMu.
func (ts *taskState) enqueueLocked(listeners []Listener, ev Event) bool {
	ts.queue = append(ts.queue, queuedEvent{listeners: listeners, ev: ev})
	if ts.draining {
		return false
	}
	ts.draining = true
	return true
}

// drain delivers queued events in order. Events queued by a listener are
// delivered by the same loop after it returns.
func (ts *taskState) drain() {
	for {
		ts.emitMu.Lock()
		if len(ts.queue) == 0 {
			ts.draining = false
			ts.emitMu.Unlock()
			return
		}
		next := ts.queue[0]
		ts.queue = ts.queue[1:]
		ts.emitMu.Unlock()

		emit(next.listeners, next.ev)
	}
}

// NewManager builds a manager for slot.
func NewManager(slot Slot, transport Transport, opts Options) *Manager {
	limiter := opts.Limiter
	if limiter == nil {
		n := opts.MaxConcurrent
		if n <= 0 {
			n = defaultMaxConcurrent
		}
		limiter = semaphore.NewWeighted(n)
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		slot:      slot,
		transport: transport,
		limiter:   limiter,
		timeout:   opts.TransferTimeout,
		fields:    opts.Fields,
		base:      base,
		cancel:    cancel,
		tasks:     make(map[string]*taskState),
	}
}

// Slot returns the slot definition.
func (m *Manager) Slot() Slot { return m.slot }

// Subscribe registers a listener for task events.
func (m *Manager) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Accept checks a batch and starts one transfer per accepted file.
// A single invalid file rejects the whole batch; earlier tasks are untouched.
func (m *Manager) Accept(files []File) error {
	started, err := m.add(files, true)
	if err != nil {
		return err
	}
	for _, ts := range started {
		m.start(ts)
	}
	return nil
}

// Stage checks a batch like Accept but leaves the transfers for Settle.
func (m *Manager) Stage(files []File) error {
	_, err := m.add(files, false)
	return err
}

func (m *Manager) add(files []File, start bool) ([]*taskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	m.slotErr = ""
	if len(files) == 0 {
		return nil, nil
	}

	for _, f := range files {
		if f.Size() > m.slot.MaxBytes {
			return nil, m.reject(f.Name(), RejectTooLarge,
				fmt.Sprintf("%q dépasse la taille maximale de %s", f.Name(), maxSizeLabel(m.slot.MaxBytes)))
		}
	}
	for _, f := range files {
		if !m.slot.AcceptsName(f.Name()) {
			return nil, m.reject(f.Name(), RejectUnsupportedType,
				fmt.Sprintf("%q n'est pas un format accepté", f.Name()))
		}
	}

	batch := files
	if !m.slot.Multiple {
		batch = files[:1]
		if m.hasLiveTaskLocked() {
			return nil, m.reject(batch[0].Name(), RejectSlotOccupied,
				"Un fichier est déjà présent, retirez-le avant d'en ajouter un autre")
		}
	}

	out := make([]*taskState, 0, len(batch))
	for _, f := range batch {
		ts := &taskState{
			task: Task{
				ID:       uuid.NewString(),
				Slot:     m.slot.Name,
				FileName: f.Name(),
				Size:     f.Size(),
				State:    StatePending,
				Started:  start,
			},
			file: f,
			done: make(chan struct{}),
		}
		m.tasks[ts.task.ID] = ts
		m.order = append(m.order, ts.task.ID)
		out = append(out, ts)
	}
	telemetry.Debug("upload.accepted", map[string]any{
		"slot":   m.slot.Name,
		"tasks":  len(out),
		"staged": !start,
	})
	return out, nil
}

func (m *Manager) reject(fileName string, kind RejectionKind, msg string) error {
	m.slotErr = msg
	telemetry.Info("upload.rejected", map[string]any{
		"slot":   m.slot.Name,
		"file":   fileName,
		"reason": string(kind),
	})
	return &RejectionError{Slot: m.slot.Name, FileName: fileName, Kind: kind, Message: msg}
}

func (m *Manager) start(ts *taskState) {
	m.mu.Lock()
	if m.closed || ts.abandoned || ts.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.base)
	ts.cancel = cancel
	ts.task.Started = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(ts.done)
		ref, err := m.transfer(ctx, ts)
		m.finish(ts, ref, err)
	}()
}

func (m *Manager) transfer(ctx context.Context, ts *taskState) (RemoteRef, error) {
	if err := m.limiter.Acquire(ctx, 1); err != nil {
		return RemoteRef{}, err
	}
	defer m.limiter.Release(1)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	body, err := ts.file.Open()
	if err != nil {
		return RemoteRef{}, fmt.Errorf("open %s: %w", ts.file.Name(), err)
	}
	defer body.Close()

	var fields map[string]string
	if m.fields != nil {
		fields = m.fields()
	}
	size := ts.file.Size()
	return m.transport.Upload(ctx, UploadRequest{
		Slot:     m.slot,
		FileName: ts.file.Name(),
		Size:     size,
		Body:     body,
		Fields:   fields,
		Progress: func(sent, total int64) {
			if total <= 0 {
				total = size
			}
			if total <= 0 {
				return
			}
			m.progress(ts, float64(sent)/float64(total))
		},
	})
}

func (m *Manager) progress(ts *taskState, ratio float64) {
	if ratio > 1 {
		ratio = 1
	}
	ts.emitMu.Lock()
	if ts.terminal || ratio <= ts.last {
		ts.emitMu.Unlock()
		return
	}
	ts.last = ratio

	m.mu.Lock()
	ts.task.Progress = ratio
	ev := Event{Kind: EventProgress, Slot: m.slot.Name, TaskID: ts.task.ID, FileName: ts.task.FileName, Progress: ratio}
	listeners := m.listeners
	m.mu.Unlock()

	mustDrain := ts.enqueueLocked(listeners, ev)
	ts.emitMu.Unlock()
	if mustDrain {
		ts.drain()
	}
}

func (m *Manager) finish(ts *taskState, ref RemoteRef, err error) {
	ts.emitMu.Lock()

	m.mu.Lock()
	abandoned := ts.abandoned
	if !abandoned {
		if err == nil {
			ts.task.State = StateSucceeded
			ts.task.Progress = 1
			ts.task.Ref = ref
		} else {
			ts.task.State = StateFailed
			ts.task.Progress = 0
			ts.task.Reason = reasonFor(err)
		}
	}
	task := ts.task
	listeners := m.listeners
	m.mu.Unlock()

	if abandoned {
		ts.emitMu.Unlock()
		if err == nil {
			m.deleteOrphan(task, ref)
		}
		return
	}

	ts.terminal = true
	ev := Event{Slot: task.Slot, TaskID: task.ID, FileName: task.FileName}
	fields := map[string]any{"slot": task.Slot, "task_id": task.ID, "file": task.FileName}
	if err == nil {
		ev.Kind = EventSucceeded
		ev.Progress = 1
		ev.Ref = ref
		fields["document_id"] = ref.DocumentID
		telemetry.Info("upload.succeeded", fields)
	} else {
		ev.Kind = EventFailed
		ev.Reason = task.Reason
		fields["error"] = err.Error()
		telemetry.Warn("upload.failed", fields)
	}
	mustDrain := ts.enqueueLocked(listeners, ev)
	ts.emitMu.Unlock()
	if mustDrain {
		ts.drain()
	}
}

// deleteOrphan removes an object whose task was abandoned before the transfer resolved.
func (m *Manager) deleteOrphan(task Task, ref RemoteRef) {
	ctx, cancel := context.WithTimeout(context.Background(), orphanDeleteTimeout)
	defer cancel()
	fields := map[string]any{"slot": task.Slot, "task_id": task.ID, "document_id": ref.DocumentID}
	if err := m.transport.Delete(ctx, ref); err != nil {
		fields["error"] = err.Error()
		telemetry.Warn("upload.orphan_delete_failed", fields)
		return
	}
	telemetry.Info("upload.orphan_deleted", fields)
}

// Remove withdraws a task. A succeeded task is deleted remotely first and
// stays in place when that fails. A pending task is abandoned: its transfer
// is cancelled and any object it still manages to store is deleted.
func (m *Manager) Remove(ctx context.Context, taskID string) error {
	m.mu.Lock()
	ts, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return ErrTaskNotFound
	}
	if ts.removing {
		m.mu.Unlock()
		return ErrRemovalInProgress
	}

	switch ts.task.State {
	case StateSucceeded:
		ts.removing = true
		ref := ts.task.Ref
		m.mu.Unlock()

		err := m.transport.Delete(ctx, ref)

		m.mu.Lock()
		ts.removing = false
		if err != nil {
			m.mu.Unlock()
			telemetry.Warn("upload.delete_failed", map[string]any{
				"slot":        m.slot.Name,
				"task_id":     taskID,
				"document_id": ref.DocumentID,
				"error":       err.Error(),
			})
			return fmt.Errorf("delete document %s: %w", ref.DocumentID, err)
		}
		m.dropLocked(taskID)
		m.mu.Unlock()
	case StatePending:
		ts.abandoned = true
		cancel := ts.cancel
		if cancel == nil {
			close(ts.done)
		}
		m.dropLocked(taskID)
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		m.dropLocked(taskID)
		m.mu.Unlock()
	}

	m.emitRemoved(ts)
	return nil
}

// DismissError drops a failed task from local state.
func (m *Manager) DismissError(taskID string) error {
	m.mu.Lock()
	ts, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return ErrTaskNotFound
	}
	if ts.task.State != StateFailed {
		m.mu.Unlock()
		return ErrTaskNotFailed
	}
	m.dropLocked(taskID)
	m.mu.Unlock()

	m.emitRemoved(ts)
	return nil
}

func (m *Manager) emitRemoved(ts *taskState) {
	ts.emitMu.Lock()
	ts.terminal = true

	m.mu.Lock()
	listeners := m.listeners
	task := ts.task
	m.mu.Unlock()

	mustDrain := ts.enqueueLocked(listeners, Event{Kind: EventRemoved, Slot: task.Slot, TaskID: task.ID, FileName: task.FileName})
	ts.emitMu.Unlock()
	if mustDrain {
		ts.drain()
	}
}

func (m *Manager) dropLocked(taskID string) {
	delete(m.tasks, taskID)
	for i, id := range m.order {
		if id == taskID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns copies of all tasks in the order they were added.
func (m *Manager) Snapshot() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].task)
	}
	return out
}

// Task returns a copy of one task.
func (m *Manager) Task(taskID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return ts.task, true
}

// SlotError returns the message of the last rejected batch, if any.
func (m *Manager) SlotError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotErr
}

// HasLiveTask reports whether the slot holds at least one task that has not failed.
func (m *Manager) HasLiveTask() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasLiveTaskLocked()
}

func (m *Manager) hasLiveTaskLocked() bool {
	for _, ts := range m.tasks {
		if ts.task.State != StateFailed {
			return true
		}
	}
	return false
}

// Settle starts staged tasks, waits until every pending task of the slot
// resolves and returns the references of the succeeded ones.
func (m *Manager) Settle(ctx context.Context) ([]RemoteRef, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	var staged []*taskState
	var waits []chan struct{}
	for _, id := range m.order {
		ts := m.tasks[id]
		if ts.task.State != StatePending {
			continue
		}
		if !ts.task.Started {
			staged = append(staged, ts)
		}
		waits = append(waits, ts.done)
	}
	m.mu.Unlock()

	for _, ts := range staged {
		m.start(ts)
	}
	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []RemoteRef
	for _, id := range m.order {
		if ts := m.tasks[id]; ts.task.State == StateSucceeded {
			refs = append(refs, ts.task.Ref)
		}
	}
	return refs, nil
}

// Close abandons every pending transfer and waits for their goroutines.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func emit(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}
