package tasks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

func TestRegistry_CommitsResult(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	key := Key{SiteID: "kitchen", Kind: "scan"}
	done := make(chan bool, 1)

	if err := r.Start(key, func(_ context.Context, task *Task) {
		done <- task.Commit(func() {})
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Error("Commit() = false for the only task")
		}
	case <-time.After(waitTimeout):
		t.Fatal("task did not run")
	}

	r.Stop()
	if r.Active(key) {
		t.Error("slot still active after the task finished")
	}
}

func TestRegistry_SupersedeCancelsOld(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	key := Key{SiteID: "kitchen", Kind: "scan"}
	oldStarted := make(chan struct{})
	oldCancelled := make(chan struct{})
	var committed atomic.Int32
	var oldCommitted atomic.Bool

	if err := r.Start(key, func(ctx context.Context, task *Task) {
		close(oldStarted)
		<-ctx.Done()
		close(oldCancelled)
		oldCommitted.Store(task.Commit(func() { committed.Add(1) }))
	}); err != nil {
		t.Fatalf("Start(old) error = %v", err)
	}
	<-oldStarted

	release := make(chan struct{})
	newDone := make(chan bool, 1)
	if err := r.Start(key, func(_ context.Context, task *Task) {
		<-release
		newDone <- task.Commit(func() { committed.Add(10) })
	}); err != nil {
		t.Fatalf("Start(new) error = %v", err)
	}

	select {
	case <-oldCancelled:
	case <-time.After(waitTimeout):
		t.Fatal("old task was not cancelled")
	}

	close(release)
	select {
	case ok := <-newDone:
		if !ok {
			t.Error("new task could not commit")
		}
	case <-time.After(waitTimeout):
		t.Fatal("new task did not finish")
	}

	r.Stop()
	if oldCommitted.Load() {
		t.Error("superseded task committed its result")
	}
	if got := committed.Load(); got != 10 {
		t.Errorf("committed = %d, want only the new task's result", got)
	}
}

func TestRegistry_NewTaskWaitsForSuperseded(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	key := Key{SiteID: "kitchen", Kind: "scan"}
	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	oldStarted := make(chan struct{})
	if err := r.Start(key, func(ctx context.Context, _ *Task) {
		record("start old")
		close(oldStarted)
		<-ctx.Done()
		// Cleanup after cancellation, e.g. stopping discovery.
		time.Sleep(20 * time.Millisecond)
		record("stop old")
	}); err != nil {
		t.Fatalf("Start(old) error = %v", err)
	}
	<-oldStarted

	newDone := make(chan struct{})
	if err := r.Start(key, func(_ context.Context, _ *Task) {
		record("start new")
		close(newDone)
	}); err != nil {
		t.Fatalf("Start(new) error = %v", err)
	}

	select {
	case <-newDone:
	case <-time.After(waitTimeout):
		t.Fatal("new task did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"start old", "stop old", "start new"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRegistry_StartAfterCancelWaits(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	key := Key{SiteID: "kitchen", Kind: "connect"}
	var oldReturned atomic.Bool
	oldStarted := make(chan struct{})
	if err := r.Start(key, func(ctx context.Context, _ *Task) {
		close(oldStarted)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		oldReturned.Store(true)
	}); err != nil {
		t.Fatalf("Start(old) error = %v", err)
	}
	<-oldStarted
	r.Cancel(key)

	sawOld := make(chan bool, 1)
	if err := r.Start(key, func(context.Context, *Task) {
		sawOld <- oldReturned.Load()
	}); err != nil {
		t.Fatalf("Start(new) error = %v", err)
	}

	select {
	case returned := <-sawOld:
		if !returned {
			t.Error("new task ran while the cancelled task was still running")
		}
	case <-time.After(waitTimeout):
		t.Fatal("new task did not run")
	}
}

func TestRegistry_SupersedeChainRunsInOrder(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	key := Key{SiteID: "kitchen", Kind: "scan"}
	var firstReturned atomic.Bool
	firstStarted := make(chan struct{})
	if err := r.Start(key, func(ctx context.Context, _ *Task) {
		close(firstStarted)
		<-ctx.Done()
		time.Sleep(30 * time.Millisecond)
		firstReturned.Store(true)
	}); err != nil {
		t.Fatalf("Start(first) error = %v", err)
	}
	<-firstStarted

	var secondRan atomic.Bool
	if err := r.Start(key, func(context.Context, *Task) { secondRan.Store(true) }); err != nil {
		t.Fatalf("Start(second) error = %v", err)
	}
	sawFirst := make(chan bool, 1)
	if err := r.Start(key, func(context.Context, *Task) { sawFirst <- firstReturned.Load() }); err != nil {
		t.Fatalf("Start(third) error = %v", err)
	}

	select {
	case returned := <-sawFirst:
		if !returned {
			t.Error("third task ran before the first returned")
		}
	case <-time.After(waitTimeout):
		t.Fatal("third task did not run")
	}
	if secondRan.Load() {
		t.Error("task superseded while waiting still ran")
	}
}

func TestRegistry_IndependentSlots(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	block := make(chan struct{})
	for _, key := range []Key{{"kitchen", "scan"}, {"kitchen", "connect"}, {"office", "scan"}} {
		if err := r.Start(key, func(ctx context.Context, _ *Task) {
			select {
			case <-block:
			case <-ctx.Done():
			}
		}); err != nil {
			t.Fatalf("Start(%s) error = %v", key, err)
		}
	}

	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	close(block)
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	key := Key{SiteID: "kitchen", Kind: "connect"}
	result := make(chan bool, 1)
	if err := r.Start(key, func(ctx context.Context, task *Task) {
		<-ctx.Done()
		result <- task.Commit(func() {})
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !r.Cancel(key) {
		t.Fatal("Cancel() = false for running task")
	}
	if r.Cancel(key) {
		t.Error("Cancel() = true for empty slot")
	}

	select {
	case ok := <-result:
		if ok {
			t.Error("cancelled task committed")
		}
	case <-time.After(waitTimeout):
		t.Fatal("cancelled task did not return")
	}
}

func TestRegistry_StopWaitsAndRejects(t *testing.T) {
	r := NewRegistry()

	var exited atomic.Bool
	if err := r.Start(Key{"kitchen", "scan"}, func(ctx context.Context, _ *Task) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		exited.Store(true)
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r.Stop()
	if !exited.Load() {
		t.Error("Stop() returned before the task exited")
	}

	err := r.Start(Key{"kitchen", "scan"}, func(context.Context, *Task) {})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}
}

func TestRegistry_RecoversPanic(t *testing.T) {
	r := NewRegistry()
	key := Key{SiteID: "kitchen", Kind: "scan"}

	if err := r.Start(key, func(context.Context, *Task) { panic("boom") }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Stop()

	if r.Active(key) {
		t.Error("slot held after panic")
	}
}
