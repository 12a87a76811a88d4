package view

import "github.com/JonMunkholm/staffgrid/internal/core"

// Field names shared by the row projection, column descriptors and
// inbound cell edits.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldDepartment = "department"
	FieldJoinDate   = "joinDate"
)

// Row is the plain-scalar projection of one employee handed to a widget.
type Row map[string]any

// Source is the read side of the store a SyncManager projects from.
type Source interface {
	Snapshot() []core.Employee
	DistinctDepartments() []string
}

// Project converts employees into fresh rows, preserving order.
// Ids stay integers and dates become yyyy-MM-dd strings.
func Project(employees []core.Employee) []Row {
	rows := make([]Row, len(employees))
	for i, e := range employees {
		rows[i] = Row{
			FieldID:         e.ID,
			FieldName:       e.Name,
			FieldDepartment: e.Department,
			FieldJoinDate:   e.JoinDate.String(),
		}
	}
	return rows
}
