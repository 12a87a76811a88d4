// Package view keeps independently rendered table widgets consistent with
// the employee store.
//
// A widget implementation satisfies [Contract]. It owns its own drawing,
// paging and filtering; this package only tells it when to appear, what
// rows to show and when to go away. [SyncManager] is the single owner of
// which views are live and pushes a fresh projection of the store to every
// live view after each mutation.
package view

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotLive is returned by operations addressed to a view that has no
	// live instance. It is reported, never fatal.
	ErrNotLive = errors.New("view not live")

	// ErrNotReady means the widget's container cannot host an instance yet
	// (for example it is still hidden). Wrap it in a TransientError.
	ErrNotReady = errors.New("view not ready")

	// ErrUnknownView is returned when activating a name that has no definition.
	ErrUnknownView = errors.New("unknown view")
)

// TransientError marks a view failure that is worth retrying.
type TransientError struct {
	ViewID string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("view %s: %v", e.ViewID, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrNotReady)
}

// FilterKind selects the header filter a column offers.
type FilterKind string

const (
	FilterNone   FilterKind = ""
	FilterInput  FilterKind = "input"
	FilterSelect FilterKind = "select"
)

// FormatterKind selects a cell formatter.
type FormatterKind string

const (
	FormatPlain   FormatterKind = ""
	FormatActions FormatterKind = "actions"
)

// Column describes one column of a view.
type Column struct {
	Title        string        `json:"title"`
	Field        string        `json:"field"`
	Editable     bool          `json:"editable,omitempty"`
	Width        int           `json:"width,omitempty"`
	HeaderFilter FilterKind    `json:"headerFilter,omitempty"`
	FilterValues []string      `json:"headerFilterValues,omitempty"`
	Formatter    FormatterKind `json:"formatter,omitempty"`
}

// Options configures a view instance.
type Options struct {
	CellEditCallback bool   `json:"cellEdited,omitempty"`
	Pagination       bool   `json:"pagination,omitempty"`
	PageSize         int    `json:"paginationSize,omitempty"`
	PageSizeChoices  []int  `json:"paginationSizeSelector,omitempty"`
	Layout           string `json:"layout,omitempty"`
}

// Descriptor is everything needed to (re)create a view instance.
type Descriptor struct {
	ID      string   `json:"id"`
	Columns []Column `json:"columns"`
	Options Options  `json:"options"`
}

// Contract is the capability a rendering widget exposes.
//
// Initialize must only be called for an id without a live instance;
// SyncManager destroys first on every reactivation. ReplaceData and
// ClearFilters return ErrNotLive for ids without an instance. Destroy on an
// absent id is a no-op returning nil. None of the operations may touch the
// store; edits come back through Events.
type Contract interface {
	Initialize(ctx context.Context, viewID string, columns []Column, rows []Row, opts Options) error
	ReplaceData(ctx context.Context, viewID string, rows []Row) error
	Destroy(ctx context.Context, viewID string) error
	ClearFilters(ctx context.Context, viewID string) error

	// Events delivers user actions raised inside any view.
	Events() <-chan Event
}

// Event is a user action raised by a view.
type Event interface {
	isEvent()
}

// CellEdited carries the row of a view after one of its cells was edited.
// Row holds raw widget values keyed by field name.
type CellEdited struct {
	ViewID string
	Row    map[string]any
}

// DeleteRequested asks to remove a record.
type DeleteRequested struct {
	ID int
}

// EditRequested asks to open the edit dialog for a record.
type EditRequested struct {
	ID int
}

func (CellEdited) isEvent()      {}
func (DeleteRequested) isEvent() {}
func (EditRequested) isEvent()   {}
