package ingress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JonMunkholm/staffgrid/internal/core"
)

// ErrDialogClosed is returned when editing or saving without an open dialog.
var ErrDialogClosed = errors.New("dialog is closed")

// DialogMode is the state of the modal edit dialog.
type DialogMode int

const (
	Closed DialogMode = iota
	CreatingNew
	EditingExisting
)

func (m DialogMode) String() string {
	switch m {
	case CreatingNew:
		return "creating"
	case EditingExisting:
		return "editing"
	default:
		return "closed"
	}
}

// DialogState describes an open or closed dialog. ID is the record being
// edited, or the prospective id while creating.
type DialogState struct {
	Mode  DialogMode    `json:"mode"`
	ID    int           `json:"id"`
	Title string        `json:"title"`
	Draft core.Employee `json:"draft"`
}

// Dialog edits one employee on an isolated working copy. Nothing reaches
// the store until Save.
//
// Opening a create dialog shows the prospective id max+1 without reserving
// it. Two dialogs opened before either saves show the same id; Save still
// stores each record under a unique id from Store.Add.
type Dialog struct {
	store *core.Store
	views Broadcaster

	mu      sync.Mutex
	mode    DialogMode
	working core.Employee
}

// NewDialog returns a closed dialog.
func NewDialog(store *core.Store, views Broadcaster) *Dialog {
	return &Dialog{store: store, views: views}
}

// OpenNew starts creating a record and returns the blank working copy.
func (d *Dialog) OpenNew() core.Employee {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mode = CreatingNew
	d.working = core.Employee{ID: d.store.NextID(), JoinDate: core.Today()}
	return d.working
}

// OpenEdit starts editing a copy of the record with the given id.
func (d *Dialog) OpenEdit(id int) (core.Employee, error) {
	e, ok := d.store.Get(id)
	if !ok {
		return core.Employee{}, fmt.Errorf("open edit %d: %w", id, core.ErrNotFound)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.mode = EditingExisting
	d.working = e
	return d.working, nil
}

// State returns the current mode and a copy of the working record.
func (d *Dialog) State() DialogState {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := DialogState{Mode: d.mode}
	switch d.mode {
	case CreatingNew:
		st.ID = d.working.ID
		st.Title = "신규 직원 등록"
		st.Draft = d.working
	case EditingExisting:
		st.ID = d.working.ID
		st.Title = fmt.Sprintf("직원 정보 수정 (ID: %d)", d.working.ID)
		st.Draft = d.working
	}
	return st
}

// Update edits the working copy. The id cannot be changed.
func (d *Dialog) Update(fn func(*core.Employee)) (core.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode == Closed {
		return core.Employee{}, ErrDialogClosed
	}

	draft := d.working
	fn(&draft)
	draft.ID = d.working.ID
	d.working = draft
	return d.working, nil
}

// Save commits the working copy and closes the dialog. A new record is
// appended with a freshly assigned id; an existing record is overwritten
// wholesale. Every successful save is broadcast.
func (d *Dialog) Save(ctx context.Context) (core.Employee, error) {
	d.mu.Lock()
	mode, working := d.mode, d.working
	d.mode = Closed
	d.working = core.Employee{}
	d.mu.Unlock()

	var saved core.Employee
	switch mode {
	case CreatingNew:
		saved = d.store.Add(working)
	case EditingExisting:
		if err := d.store.Replace(working); err != nil {
			return core.Employee{}, fmt.Errorf("save dialog: %w", err)
		}
		saved = working
	default:
		return core.Employee{}, ErrDialogClosed
	}

	d.views.Broadcast(ctx)
	return saved, nil
}

// Cancel closes the dialog and discards the working copy.
func (d *Dialog) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mode = Closed
	d.working = core.Employee{}
}
