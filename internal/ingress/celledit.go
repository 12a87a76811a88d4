package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

var (
	errMissingID = errors.New("row has no id")
	errBadID     = errors.New("row id is not an integer")
)

// CellEdit is the typed form of a loosely typed row coming back from a view.
// Fields absent from the row are nil in Patch.
type CellEdit struct {
	ID    int
	Patch core.Patch

	// DroppedDate holds the raw join date when it was present but could not
	// be parsed. The field is left out of Patch.
	DroppedDate string
}

// DecodeCellEdit extracts the record id and the editable fields from row.
// Keys other than id, name, department and joinDate are ignored.
func DecodeCellEdit(row map[string]any) (CellEdit, error) {
	raw, ok := row[view.FieldID]
	if !ok || raw == nil {
		return CellEdit{}, errMissingID
	}
	id, err := toInt(raw)
	if err != nil {
		return CellEdit{}, err
	}

	edit := CellEdit{ID: id}
	if v, ok := row[view.FieldName]; ok {
		edit.Patch.Name = core.Ptr(core.CleanCell(toString(v)))
	}
	if v, ok := row[view.FieldDepartment]; ok {
		edit.Patch.Department = core.Ptr(core.CleanCell(toString(v)))
	}
	if v, ok := row[view.FieldJoinDate]; ok {
		s := toString(v)
		if d, ok := core.ParseDate(s); ok {
			edit.Patch.JoinDate = &d
		} else {
			edit.DroppedDate = s
		}
	}
	return edit, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: %v", errBadID, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errBadID, n.String())
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errBadID, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %T", errBadID, v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
