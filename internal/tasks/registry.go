package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Start after Stop has been called.
var ErrStopped = errors.New("tasks: registry stopped")

// Key names a task slot. At most one task runs per key.
type Key struct {
	SiteID string
	Kind   string
}

func (k Key) String() string {
	return k.SiteID + "/" + k.Kind
}

// Func is the body of a supervised task. It must return promptly once ctx
// is cancelled and publish its result through t.Commit.
type Func func(ctx context.Context, t *Task)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Task is the handle a running Func uses to publish its result.
type Task struct {
	id       uint64
	key      Key
	registry *Registry
	cancel   context.CancelFunc
	done     chan struct{}
}

// Key returns the slot the task runs in.
func (t *Task) Key() Key {
	return t.key
}

// Commit runs fn if the task still owns its slot, and releases the slot.
// A task that was superseded or cancelled never commits. fn runs without
// any registry lock held.
func (t *Task) Commit(fn func()) bool {
	r := t.registry
	r.mu.Lock()
	current, ok := r.slots[t.key]
	owns := ok && current.id == t.id
	if owns {
		delete(r.slots, t.key)
	}
	r.mu.Unlock()

	if !owns {
		r.logger.Debug("suppressed result of superseded task", "task", t.key.String())
		return false
	}
	fn()
	return true
}

// Registry supervises long-running adapter operations so they never block
// message delivery. Starting a task in an occupied slot cancels the running
// task cooperatively: its context is cancelled and its result suppressed.
// The new task's Func only runs once every earlier task of the slot has
// returned, so two tasks of one slot never touch the adapter at once.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.Mutex
	slots   map[Key]*Task
	last    map[Key]*Task // newest task per key until it returns
	nextID  uint64
	stopped bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		slots:  make(map[Key]*Task),
		last:   make(map[Key]*Task),
		ctx:    ctx,
		cancel: cancel,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Start runs fn in its own goroutine in slot key, superseding any task
// already running there. Start does not block; the goroutine waits for the
// superseded task to return before calling fn.
func (r *Registry) Start(key Key, fn Func) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStopped, key)
	}

	if old, ok := r.slots[key]; ok {
		old.cancel()
		r.logger.Info("superseding running task", "task", key.String())
	}

	r.nextID++
	ctx, cancel := context.WithCancel(r.ctx)
	t := &Task{
		id:       r.nextID,
		key:      key,
		registry: r,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	prev := r.last[key]
	r.slots[key] = t
	r.last[key] = t
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, t, prev, fn)
	return nil
}

func (r *Registry) run(ctx context.Context, t, prev *Task, fn Func) {
	defer r.wg.Done()
	defer close(t.done)
	defer r.forget(t)
	defer t.cancel()
	defer r.release(t)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panic recovered", "task", t.key.String(), "panic", rec)
		}
	}()

	// A task superseded while waiting still waits, so done closes in
	// start order.
	if prev != nil {
		<-prev.done
		if ctx.Err() != nil {
			r.logger.Debug("task cancelled before it started", "task", t.key.String())
			return
		}
	}
	fn(ctx, t)
}

// forget drops t from the newest-task index once it has returned.
func (r *Registry) forget(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last[t.key] == t {
		delete(r.last, t.key)
	}
}

// release frees the slot if t still owns it.
func (r *Registry) release(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.slots[t.key]; ok && current.id == t.id {
		delete(r.slots, t.key)
	}
}

// Cancel cancels the task in slot key. It reports whether one was running.
func (r *Registry) Cancel(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.slots[key]
	if !ok {
		return false
	}
	t.cancel()
	delete(r.slots, key)
	return true
}

// Active reports whether a task currently owns slot key.
func (r *Registry) Active(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[key]
	return ok
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Stop cancels every task, rejects new ones and waits for all goroutines,
// including superseded ones, to return.
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.slots = make(map[Key]*Task)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
