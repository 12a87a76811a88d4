package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/JonMunkholm/staffgrid/internal/core"
)

// Download names and content type for the generated files.
const (
	ExportFileName   = "employees-export.csv"
	TemplateFileName = "employee-template.csv"
	CSVMimeType      = "text/csv;charset=utf-8"
)

// ExportHeader is the first row of an export. The Id column makes an export
// unfit for re-import, which is intended: exports are for viewing and backup.
var ExportHeader = []string{"Id", "Name", "Department", "JoinDate"}

// TemplateExample is the sample row written under the template header.
var TemplateExample = []string{"예: 홍길동", "영업", "2024-01-01"}

// WriteExport writes every employee as CSV with dates as yyyy-MM-dd.
func WriteExport(w io.Writer, employees iter.Seq[core.Employee]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for e := range employees {
		record := []string{strconv.Itoa(e.ID), e.Name, e.Department, e.JoinDate.String()}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write employee %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTemplate writes the import template: the English header and one
// example row.
func WriteTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll([][]string{englishHeader[:], TemplateExample}); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}

// ExportBytes renders WriteExport into memory.
func ExportBytes(employees iter.Seq[core.Employee]) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteExport(&buf, employees); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TemplateBytes renders WriteTemplate into memory.
func TemplateBytes() []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = WriteTemplate(&buf)
	return buf.Bytes()
}
