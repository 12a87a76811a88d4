package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of one named view.
type State int

const (
	Uninitialized State = iota
	Live
	Destroyed
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Destroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Recorder receives synchronization metrics. A nil Recorder disables them.
type Recorder interface {
	ObserveActivation(viewID string, attempts int, err error)
	ObserveBroadcast(delivered, failed int, d time.Duration)
	ObserveViewFailure(viewID, op string)
	SetLiveViews(n int)
}

// SyncConfig configures a SyncManager. Zero values select defaults.
type SyncConfig struct {
	Registry        *Registry
	Retry           RetryPolicy
	ActivationDelay time.Duration
	MaxParallel     int
	Recorder        Recorder
	Logger          *slog.Logger
}

// entry is the manager's record of one view id. lifecycle serializes
// destroy and initialize for the id; the remaining fields are guarded by
// SyncManager.mu.
type entry struct {
	lifecycle sync.Mutex

	state      State
	descriptor Descriptor
	generation uint64
	stale      bool
}

// SyncManager owns the registry of live views and keeps each of them
// showing the store's current contents.
type SyncManager struct {
	contract Contract
	source   Source
	defs     *Registry
	retry    RetryPolicy
	delay    time.Duration
	parallel int
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	// push orders every delivery of store contents: a broadcast holds it
	// from snapshot to the last ReplaceData, an activation holds it from
	// snapshot until the view is marked live.
	push sync.Mutex

	deferred sync.WaitGroup
}

// NewSyncManager creates a manager pushing projections of source to contract.
func NewSyncManager(contract Contract, source Source, cfg SyncConfig) *SyncManager {
	if cfg.Registry == nil {
		cfg.Registry = Builtin()
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &SyncManager{
		contract: contract,
		source:   source,
		defs:     cfg.Registry,
		retry:    cfg.Retry,
		delay:    cfg.ActivationDelay,
		parallel: cfg.MaxParallel,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With("component", "view_sync"),
		entries:  make(map[string]*entry),
	}
}

// Definitions returns the registry of named views.
func (m *SyncManager) Definitions() *Registry {
	return m.defs
}

func (m *SyncManager) entry(viewID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[viewID]
	if !ok {
		e = &entry{}
		m.entries[viewID] = e
	}
	return e
}

// setState must be called with m.mu held.
func (m *SyncManager) setState(e *entry, s State) {
	e.state = s
	if m.recorder != nil {
		m.recorder.SetLiveViews(m.liveCountLocked())
	}
}

func (m *SyncManager) liveCountLocked() int {
	n := 0
	for _, e := range m.entries {
		if e.state == Live {
			n++
		}
	}
	return n
}

// Activate (re)creates the view viewID with a fresh projection of the store.
// A live instance is always destroyed first, so reactivation never leaves
// two instances under one id. Transient initialize failures are retried
// with the configured backoff; when retries run out the view stays
// uninitialized and the last error is returned.
func (m *SyncManager) Activate(ctx context.Context, viewID string, columns []Column, opts Options) error {
	e := m.entry(viewID)
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if err := m.destroyLive(ctx, e, viewID); err != nil {
		return fmt.Errorf("activate %s: destroy previous instance: %w", viewID, err)
	}

	logger := m.logger.With("view_id", viewID)
	attempts, err := m.retry.Do(ctx, func() error {
		m.push.Lock()
		defer m.push.Unlock()

		rows := Project(m.source.Snapshot())
		if err := m.contract.Initialize(ctx, viewID, slices.Clone(columns), rows, opts); err != nil {
			return err
		}

		m.mu.Lock()
		e.descriptor = Descriptor{ID: viewID, Columns: slices.Clone(columns), Options: opts}
		e.generation++
		e.stale = false
		m.setState(e, Live)
		m.mu.Unlock()
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Debug("view not ready, retrying", "attempt", attempt, "wait", wait, "error", err)
	})

	if m.recorder != nil {
		m.recorder.ObserveActivation(viewID, attempts, err)
	}
	if err != nil {
		// Drop anything a failed initialize may have left behind.
		if derr := m.contract.Destroy(context.WithoutCancel(ctx), viewID); derr != nil {
			logger.Debug("cleanup after failed activation", "error", derr)
		}
		logger.Warn("view activation abandoned", "attempts", attempts, "error", err)
		return fmt.Errorf("activate %s: %w", viewID, err)
	}

	logger.Debug("view activated", "attempts", attempts)
	return nil
}

// ActivateNamed activates a view from its registered definition.
func (m *SyncManager) ActivateNamed(ctx context.Context, viewID string) error {
	def, ok := m.defs.Get(viewID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, viewID)
	}
	desc := def.Descriptor(m.source)
	return m.Activate(ctx, viewID, desc.Columns, desc.Options)
}

// ActivateDeferred activates a named view after the configured activation
// delay, giving a freshly shown tab time to lay out. It returns at once;
// use Wait to join outstanding activations.
func (m *SyncManager) ActivateDeferred(ctx context.Context, viewID string) {
	if _, ok := m.defs.Get(viewID); !ok {
		m.logger.Warn("deferred activation of unknown view", "view_id", viewID)
		return
	}

	m.deferred.Add(1)
	go func() {
		defer m.deferred.Done()

		if m.delay > 0 {
			timer := time.NewTimer(m.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if err := m.ActivateNamed(ctx, viewID); err != nil && ctx.Err() == nil {
			m.logger.Error("deferred activation failed", "view_id", viewID, "error", err)
		}
	}()
}

// Wait blocks until every deferred activation has finished.
func (m *SyncManager) Wait() {
	m.deferred.Wait()
}

// Deactivate destroys the instance of viewID. Deactivating a view that is
// not live is a no-op.
func (m *SyncManager) Deactivate(ctx context.Context, viewID string) error {
	m.mu.Lock()
	e, ok := m.entries[viewID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if err := m.destroyLive(ctx, e, viewID); err != nil {
		return fmt.Errorf("deactivate %s: %w", viewID, err)
	}
	m.logger.Debug("view deactivated", "view_id", viewID)
	return nil
}

// destroyLive tears down the instance of a live view: Live -> Destroyed ->
// Uninitialized. A view that is not live is left alone. If Destroy fails
// the instance is still there and the view goes back to Live.
// Callers hold e.lifecycle.
func (m *SyncManager) destroyLive(ctx context.Context, e *entry, viewID string) error {
	m.mu.Lock()
	if e.state != Live {
		m.mu.Unlock()
		return nil
	}
	e.generation++
	m.setState(e, Destroyed)
	m.mu.Unlock()

	err := m.contract.Destroy(ctx, viewID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.setState(e, Live)
		e.stale = true
		return err
	}
	e.stale = false
	m.setState(e, Uninitialized)
	return nil
}

// DeactivateAll destroys every live view, for example on shutdown.
func (m *SyncManager) DeactivateAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.Live() {
		if err := m.Deactivate(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearFilters resets the view-local filters of a live view.
func (m *SyncManager) ClearFilters(ctx context.Context, viewID string) error {
	if m.State(viewID) != Live {
		return fmt.Errorf("clear filters %s: %w", viewID, ErrNotLive)
	}
	if err := m.contract.ClearFilters(ctx, viewID); err != nil {
		return fmt.Errorf("clear filters %s: %w", viewID, err)
	}
	return nil
}

// BroadcastResult reports which views received the latest projection.
type BroadcastResult struct {
	Delivered []string
	Failed    map[string]error
}

// Broadcast pushes a fresh projection of the store to every live view.
// Views are independent: a failing view is marked stale and logged, the
// others still receive their data, and the stale view is pushed again by
// the next broadcast.
//
// Broadcasts and activations are delivered one at a time, so a view never
// receives an older snapshot after a newer one, and a view that becomes
// live during a mutation is either initialized with it or pushed it.
func (m *SyncManager) Broadcast(ctx context.Context) BroadcastResult {
	start := time.Now()

	m.push.Lock()
	defer m.push.Unlock()

	type target struct {
		id         string
		entry      *entry
		generation uint64
	}

	m.mu.Lock()
	targets := make([]target, 0, len(m.entries))
	for id, e := range m.entries {
		if e.state == Live {
			targets = append(targets, target{id: id, entry: e, generation: e.generation})
		}
	}
	m.mu.Unlock()

	employees := m.source.Snapshot()
	result := BroadcastResult{Failed: make(map[string]error)}
	var resultMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.parallel)
	for _, t := range targets {
		g.Go(func() error {
			err := m.contract.ReplaceData(ctx, t.id, Project(employees))

			m.mu.Lock()
			if t.entry.generation == t.generation {
				t.entry.stale = err != nil
			}
			m.mu.Unlock()

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Failed[t.id] = err
				return nil
			}
			result.Delivered = append(result.Delivered, t.id)
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(result.Delivered)
	for id, err := range result.Failed {
		m.logger.Warn("broadcast to view failed", "view_id", id, "error", err)
		if m.recorder != nil {
			m.recorder.ObserveViewFailure(id, "replace_data")
		}
	}
	if m.recorder != nil {
		m.recorder.ObserveBroadcast(len(result.Delivered), len(result.Failed), time.Since(start))
	}
	return result
}

// State returns the lifecycle state of viewID.
func (m *SyncManager) State(viewID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[viewID]; ok {
		return e.state
	}
	return Uninitialized
}

// Descriptor returns the descriptor a live view was last initialized with.
func (m *SyncManager) Descriptor(viewID string) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[viewID]
	if !ok || e.state != Live {
		return Descriptor{}, false
	}
	return e.descriptor, true
}

// Live returns the ids of all live views, sorted.
func (m *SyncManager) Live() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, e := range m.entries {
		if e.state == Live {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Stale reports whether any live view missed its last broadcast.
func (m *SyncManager) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.state == Live && e.stale {
			return true
		}
	}
	return false
}
