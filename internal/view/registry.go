package view

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Well-known view ids.
const (
	InlineEditTable = "inlineEditTable"
	ModalEditTable  = "modalEditTable"
	FilterTable     = "filterTable"
	PaginationTable = "paginationTable"
)

// Definition is a named view template. Columns whose HeaderFilter is
// FilterSelect on the department field get their values from the store at
// activation time.
type Definition struct {
	ID      string
	Label   string
	Columns []Column
	Options Options
}

// Descriptor resolves d against the current store contents.
func (d Definition) Descriptor(src Source) Descriptor {
	columns := slices.Clone(d.Columns)
	for i, c := range columns {
		if c.HeaderFilter == FilterSelect && c.Field == FieldDepartment {
			columns[i].FilterValues = src.DistinctDepartments()
		}
	}
	return Descriptor{ID: d.ID, Columns: columns, Options: d.Options}
}

// Registry holds view definitions by id.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Panics if the id is already registered.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.ID]; exists {
		panic(fmt.Sprintf("view already registered: %s", def.ID))
	}
	r.defs[def.ID] = def
}

// Get returns a definition by id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	return def, ok
}

// All returns every definition sorted by id.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}
	slices.SortFunc(result, func(a, b Definition) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Builtin returns a registry holding the four standard employee views.
func Builtin() *Registry {
	r := NewRegistry()

	idCol := Column{Title: "ID", Field: FieldID, Width: 70}
	nameCol := Column{Title: "이름", Field: FieldName}
	deptCol := Column{Title: "부서", Field: FieldDepartment}
	dateCol := Column{Title: "입사일", Field: FieldJoinDate}

	editable := func(c Column) Column {
		c.Editable = true
		return c
	}

	r.Register(Definition{
		ID:      InlineEditTable,
		Label:   "Inline edit",
		Columns: []Column{idCol, editable(nameCol), editable(deptCol), editable(dateCol)},
		Options: Options{CellEditCallback: true, Layout: "fitColumns"},
	})

	actions := Column{Title: "관리", Field: "actions", Width: 140, Formatter: FormatActions}
	r.Register(Definition{
		ID:      ModalEditTable,
		Label:   "Modal edit",
		Columns: []Column{idCol, nameCol, deptCol, dateCol, actions},
		Options: Options{Layout: "fitColumns"},
	})

	nameFilter := nameCol
	nameFilter.HeaderFilter = FilterInput
	deptFilter := deptCol
	deptFilter.HeaderFilter = FilterSelect
	r.Register(Definition{
		ID:      FilterTable,
		Label:   "Filter",
		Columns: []Column{idCol, nameFilter, deptFilter, dateCol},
		Options: Options{Layout: "fitColumns"},
	})

	r.Register(Definition{
		ID:      PaginationTable,
		Label:   "Pagination",
		Columns: []Column{idCol, nameCol, deptCol, dateCol},
		Options: Options{
			Layout:          "fitColumns",
			Pagination:      true,
			PageSize:        10,
			PageSizeChoices: []int{5, 10, 20},
		},
	})

	return r
}
