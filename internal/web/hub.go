package web

// hub.go implements view.Contract for browser widgets connected over
// Server-Sent Events. Each view id has at most one instance, whose columns,
// options and rows the hub keeps so that a reconnecting tab is replayed the
// current state. Commands are fanned out to every tab subscribed to the id.

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/staffgrid/internal/view"
)

// Message types sent to widgets.
const (
	MsgInitialize   = "initialize"
	MsgReplaceData  = "replaceData"
	MsgDestroy      = "destroy"
	MsgClearFilters = "clearFilters"
)

// Message is one command for a widget, sent as an SSE event named Type.
type Message struct {
	Type    string        `json:"type"`
	ViewID  string        `json:"viewId"`
	Columns []view.Column `json:"columns,omitempty"`
	Options *view.Options `json:"options,omitempty"`
	Rows    []view.Row    `json:"rows,omitempty"`
}

type instance struct {
	columns []view.Column
	options view.Options
	rows    []view.Row
}

type subscriber struct {
	id string
	ch chan Message
}

// Hub is the SSE implementation of view.Contract.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu        sync.Mutex
	subs      map[string]map[string]*subscriber
	instances map[string]*instance

	events chan view.Event
}

// NewHub returns a hub whose subscribers and event queue hold buffer
// messages each.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		buffer:    buffer,
		logger:    logger.With("component", "sse_hub"),
		subs:      make(map[string]map[string]*subscriber),
		instances: make(map[string]*instance),
		events:    make(chan view.Event, buffer),
	}
}

// Subscribe registers a tab for viewID. If the view has an instance its
// current state is queued first. The returned cancel func must be called
// when the tab goes away.
func (h *Hub) Subscribe(viewID string) (string, <-chan Message, func()) {
	sub := &subscriber{id: uuid.NewString(), ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	if h.subs[viewID] == nil {
		h.subs[viewID] = make(map[string]*subscriber)
	}
	h.subs[viewID][sub.id] = sub
	if inst, ok := h.instances[viewID]; ok {
		sub.ch <- initMessage(viewID, inst)
	}
	h.mu.Unlock()

	h.logger.Debug("widget subscribed", "view_id", viewID, "client_id", sub.id)

	var once sync.Once
	return sub.id, sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			h.dropLocked(viewID, sub.id)
			h.mu.Unlock()
			h.logger.Debug("widget unsubscribed", "view_id", viewID, "client_id", sub.id)
		})
	}
}

// Subscribers returns how many tabs are subscribed to viewID.
func (h *Hub) Subscribers(viewID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[viewID])
}

// dropLocked must be called with h.mu held.
func (h *Hub) dropLocked(viewID, id string) {
	subs := h.subs[viewID]
	if sub, ok := subs[id]; ok {
		delete(subs, id)
		close(sub.ch)
	}
	if len(subs) == 0 {
		delete(h.subs, viewID)
	}
}

// sendLocked queues msg for every subscriber of viewID. A subscriber whose
// buffer is full is disconnected; its tab reconnects and is replayed.
func (h *Hub) sendLocked(viewID string, msg Message) {
	for id, sub := range h.subs[viewID] {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("slow widget disconnected", "view_id", viewID, "client_id", id)
			h.dropLocked(viewID, id)
		}
	}
}

func initMessage(viewID string, inst *instance) Message {
	opts := inst.options
	return Message{
		Type:    MsgInitialize,
		ViewID:  viewID,
		Columns: inst.columns,
		Options: &opts,
		Rows:    inst.rows,
	}
}

// Initialize implements view.Contract. A view with no subscribed tab has no
// container to render into yet and fails with a transient ErrNotReady.
func (h *Hub) Initialize(_ context.Context, viewID string, columns []view.Column, rows []view.Row, opts view.Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs[viewID]) == 0 {
		return &view.TransientError{ViewID: viewID, Err: view.ErrNotReady}
	}

	inst := &instance{columns: slices.Clone(columns), options: opts, rows: rows}
	h.instances[viewID] = inst
	h.sendLocked(viewID, initMessage(viewID, inst))
	return nil
}

// ReplaceData implements view.Contract. Rows are kept even when no tab is
// connected so the next subscriber sees them.
func (h *Hub) ReplaceData(_ context.Context, viewID string, rows []view.Row) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, ok := h.instances[viewID]
	if !ok {
		return fmt.Errorf("replace data %s: %w", viewID, view.ErrNotLive)
	}
	inst.rows = rows
	h.sendLocked(viewID, Message{Type: MsgReplaceData, ViewID: viewID, Rows: rows})
	return nil
}

// Destroy implements view.Contract.
func (h *Hub) Destroy(_ context.Context, viewID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.instances[viewID]; !ok {
		return nil
	}
	delete(h.instances, viewID)
	h.sendLocked(viewID, Message{Type: MsgDestroy, ViewID: viewID})
	return nil
}

// ClearFilters implements view.Contract.
func (h *Hub) ClearFilters(_ context.Context, viewID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.instances[viewID]; !ok {
		return fmt.Errorf("clear filters %s: %w", viewID, view.ErrNotLive)
	}
	h.sendLocked(viewID, Message{Type: MsgClearFilters, ViewID: viewID})
	return nil
}

// Events implements view.Contract.
func (h *Hub) Events() <-chan view.Event {
	return h.events
}

// Publish queues an event raised by a widget, blocking while the queue is
// full until ctx is done.
func (h *Hub) Publish(ctx context.Context, ev view.Event) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects every subscriber. Instances are kept.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for viewID, subs := range h.subs {
		for id := range subs {
			h.dropLocked(viewID, id)
		}
	}
}
