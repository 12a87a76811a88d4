// Package viewtest provides an in-memory view.Contract for tests.
package viewtest

import (
	"context"
	"slices"
	"sync"

	"github.com/JonMunkholm/staffgrid/internal/view"
)

// Instance is the state of one live widget instance.
type Instance struct {
	Columns        []view.Column
	Options        view.Options
	Rows           []view.Row
	Pushes         int
	FiltersCleared int
}

// Call records one contract invocation.
type Call struct {
	Op     string
	ViewID string
}

// Widget is a view.Contract that keeps instances in memory and lets tests
// inject readiness and delivery failures.
type Widget struct {
	mu          sync.Mutex
	instances   map[string]*Instance
	overlaps    map[string]int
	notReady    map[string]int
	failReplace map[string]error
	calls       []Call
	gates       map[string]*gate
	events      chan view.Event
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// New returns an empty widget whose event channel holds buffer events.
func New(buffer int) *Widget {
	return &Widget{
		instances:   make(map[string]*Instance),
		overlaps:    make(map[string]int),
		notReady:    make(map[string]int),
		failReplace: make(map[string]error),
		gates:       make(map[string]*gate),
		events:      make(chan view.Event, buffer),
	}
}

func (w *Widget) record(op, viewID string) {
	w.calls = append(w.calls, Call{Op: op, ViewID: viewID})
}

// Hold makes the next call of op ("initialize" or "replace") on viewID
// block until release is called. entered is closed once the call is
// blocked; the rows it was given are already fixed at that point.
func (w *Widget) Hold(op, viewID string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	w.mu.Lock()
	w.gates[op+" "+viewID] = g
	w.mu.Unlock()

	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

func (w *Widget) pass(op, viewID string) {
	key := op + " " + viewID
	w.mu.Lock()
	g, ok := w.gates[key]
	delete(w.gates, key)
	w.mu.Unlock()

	if ok {
		close(g.entered)
		<-g.release
	}
}

// Initialize implements view.Contract.
func (w *Widget) Initialize(_ context.Context, viewID string, columns []view.Column, rows []view.Row, opts view.Options) error {
	w.pass("initialize", viewID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("initialize", viewID)

	if n := w.notReady[viewID]; n > 0 {
		w.notReady[viewID] = n - 1
		return &view.TransientError{ViewID: viewID, Err: view.ErrNotReady}
	}
	if _, live := w.instances[viewID]; live {
		w.overlaps[viewID]++
	}
	w.instances[viewID] = &Instance{Columns: columns, Options: opts, Rows: rows}
	return nil
}

// ReplaceData implements view.Contract.
func (w *Widget) ReplaceData(_ context.Context, viewID string, rows []view.Row) error {
	w.pass("replace", viewID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("replace", viewID)

	inst, ok := w.instances[viewID]
	if !ok {
		return view.ErrNotLive
	}
	if err := w.failReplace[viewID]; err != nil {
		return err
	}
	inst.Rows = rows
	inst.Pushes++
	return nil
}

// Destroy implements view.Contract.
func (w *Widget) Destroy(_ context.Context, viewID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("destroy", viewID)

	delete(w.instances, viewID)
	return nil
}

// ClearFilters implements view.Contract.
func (w *Widget) ClearFilters(_ context.Context, viewID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("clear_filters", viewID)

	inst, ok := w.instances[viewID]
	if !ok {
		return view.ErrNotLive
	}
	inst.FiltersCleared++
	return nil
}

// Events implements view.Contract.
func (w *Widget) Events() <-chan view.Event {
	return w.events
}

// Emit raises an event as if a user acted inside a view.
func (w *Widget) Emit(ev view.Event) {
	w.events <- ev
}

// CloseEvents closes the event channel.
func (w *Widget) CloseEvents() {
	close(w.events)
}

// SetNotReady makes the next n Initialize calls for viewID fail transiently.
func (w *Widget) SetNotReady(viewID string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notReady[viewID] = n
}

// FailReplace makes ReplaceData for viewID return err. A nil err heals it.
func (w *Widget) FailReplace(viewID string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failReplace, viewID)
		return
	}
	w.failReplace[viewID] = err
}

// Instance returns a copy of the live instance for viewID.
func (w *Widget) Instance(viewID string) (Instance, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	inst, ok := w.instances[viewID]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Rows returns the rows last shown by viewID.
func (w *Widget) Rows(viewID string) []view.Row {
	inst, _ := w.Instance(viewID)
	return inst.Rows
}

// Live returns the ids with a live instance, sorted.
func (w *Widget) Live() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]string, 0, len(w.instances))
	for id := range w.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Overlaps counts Initialize calls that found an instance already live.
func (w *Widget) Overlaps(viewID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.overlaps[viewID]
}

// Calls returns every recorded invocation in order.
func (w *Widget) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.calls)
}
