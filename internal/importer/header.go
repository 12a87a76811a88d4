package importer

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Locale identifies which accepted header set a file uses.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleKorean  Locale = "ko"
)

// Logical columns of an import file.
const (
	ColName = iota
	ColDepartment
	ColJoinDate
	numColumns
)

var (
	englishHeader = [numColumns]string{"Name", "Department", "JoinDate"}
	koreanHeader  = [numColumns]string{"이름", "부서", "입사일"}

	// identifierHeaders are the folded forms of an Id column, as written by
	// an export.
	identifierHeaders = []string{"id", "아이디"}

	acceptedHeaders = strings.Join(englishHeader[:], ",") + " or " + strings.Join(koreanHeader[:], ",")
)

// ValidationError describes why a header or row was rejected. It is recorded
// as a failure outcome, never returned to the caller of Import.
type ValidationError struct {
	Kind    Kind
	Field   string // logical column, empty for whole-row problems
	Value   string // raw offending value
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Header maps each logical column to its position in a record.
type Header struct {
	Locale Locale
	Pos    [numColumns]int
}

// field returns the trimmed cell for the logical column col, or "" when the
// record is too short.
func (h Header) field(record []string, col int) string {
	pos := h.Pos[col]
	if pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

// ValidateHeader checks a header record. Cells are trimmed, NFC normalized,
// and blanks are dropped before the checks run, in this order:
//
//  1. exactly three columns remain
//  2. none of them is an Id column
//  3. they are the English set (case-insensitive) or the Korean set, in any
//     order, never mixed
//
// The column order of the file is kept in the returned Header.
func ValidateHeader(record []string) (Header, error) {
	fold := cases.Fold()

	type cell struct {
		pos  int
		name string
	}
	var cells []cell
	for i, raw := range record {
		name := norm.NFC.String(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		cells = append(cells, cell{pos: i, name: name})
	}

	if len(cells) != numColumns {
		return Header{}, ValidationError{
			Kind:  KindHeaderColumnCount,
			Value: strings.Join(record, ","),
			Message: fmt.Sprintf("header column count is %d, expected %d (allowed %s)",
				len(cells), numColumns, acceptedHeaders),
		}
	}

	for _, c := range cells {
		folded := fold.String(c.name)
		for _, id := range identifierHeaders {
			if folded == id {
				return Header{}, ValidationError{
					Kind:  KindHeaderIdentifierColumn,
					Value: c.name,
					Message: fmt.Sprintf("header has identifier column %q; exported files are for viewing and backup, upload %s",
						c.name, strings.Join(englishHeader[:], ",")),
				}
			}
		}
	}

	for _, set := range []struct {
		locale Locale
		names  [numColumns]string
	}{
		{LocaleEnglish, englishHeader},
		{LocaleKorean, koreanHeader},
	} {
		h := Header{Locale: set.locale}
		var seen [numColumns]bool
		matched := 0
		for _, c := range cells {
			for col, want := range set.names {
				if !seen[col] && fold.String(want) == fold.String(c.name) {
					seen[col] = true
					h.Pos[col] = c.pos
					matched++
					break
				}
			}
		}
		if matched == numColumns {
			return h, nil
		}
	}

	return Header{}, ValidationError{
		Kind:    KindHeaderLocale,
		Value:   strings.Join(record, ","),
		Message: "header locale not recognized; allowed " + acceptedHeaders,
	}
}
