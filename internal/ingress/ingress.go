// Package ingress applies user actions raised by views to the employee
// store and re-broadcasts the result to every live view.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

// Broadcaster pushes the current store contents to all live views.
type Broadcaster interface {
	Broadcast(ctx context.Context) view.BroadcastResult
}

// Ingress is the only writer of the store on behalf of views. Its handlers
// run one at a time whether they are reached through Run or called directly
// by the HTTP layer.
type Ingress struct {
	mu sync.Mutex

	store  *core.Store
	views  Broadcaster
	dialog *Dialog
	logger *slog.Logger
}

// New returns an Ingress writing to store and broadcasting through views.
func New(store *core.Store, views Broadcaster, logger *slog.Logger) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{
		store:  store,
		views:  views,
		dialog: NewDialog(store, views),
		logger: logger.With("component", "ingress"),
	}
}

// Dialog returns the modal edit dialog fed by EditRequested events.
func (in *Ingress) Dialog() *Dialog {
	return in.dialog
}

// OnCellEdited applies the fields present in row to the record it names.
// Rows without a resolvable id are dropped and logged. An unparsable join
// date drops only that field. Reports whether the store changed.
func (in *Ingress) OnCellEdited(ctx context.Context, viewID string, row map[string]any) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	logger := in.logger.With("view_id", viewID)

	edit, err := DecodeCellEdit(row)
	if err != nil {
		logger.Warn("cell edit dropped", "error", err)
		return false
	}
	if edit.DroppedDate != "" {
		logger.Info("cell edit join date ignored", "id", edit.ID, "value", edit.DroppedDate)
	}
	if edit.Patch.IsEmpty() {
		return false
	}

	if err := in.store.UpdateFields(edit.ID, edit.Patch); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.Warn("cell edit for unknown employee dropped", "id", edit.ID)
			return false
		}
		logger.Error("cell edit failed", "id", edit.ID, "error", err)
		return false
	}

	logger.Debug("cell edit applied", "id", edit.ID)
	in.views.Broadcast(ctx)
	return true
}

// OnDeleteRequested removes the record with the given id if present.
func (in *Ingress) OnDeleteRequested(ctx context.Context, id int) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.store.Remove(id); err != nil {
		in.logger.Debug("delete of unknown employee ignored", "id", id)
		return false
	}

	in.logger.Info("employee deleted", "id", id)
	in.views.Broadcast(ctx)
	return true
}

// OnEditRequested opens the dialog on a copy of the record with the given
// id and returns that copy.
func (in *Ingress) OnEditRequested(_ context.Context, id int) (core.Employee, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	working, err := in.dialog.OpenEdit(id)
	if err != nil {
		in.logger.Debug("edit of unknown employee ignored", "id", id)
		return core.Employee{}, false
	}
	return working, true
}

// Handle dispatches one view event.
func (in *Ingress) Handle(ctx context.Context, ev view.Event) {
	switch e := ev.(type) {
	case view.CellEdited:
		in.OnCellEdited(ctx, e.ViewID, e.Row)
	case view.DeleteRequested:
		in.OnDeleteRequested(ctx, e.ID)
	case view.EditRequested:
		in.OnEditRequested(ctx, e.ID)
	default:
		in.logger.Warn("unknown view event", "type", fmt.Sprintf("%T", ev))
	}
}

// Run consumes events one at a time until ctx is done or events is closed.
func (in *Ingress) Run(ctx context.Context, events <-chan view.Event) error {
	in.logger.Info("event ingress started")
	defer in.logger.Info("event ingress stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			in.Handle(ctx, ev)
		}
	}
}
