// Package importer loads employees from CSV files and renders the export and
// template downloads.
//
// An import never fails as a whole because of bad content: header problems,
// empty names and bad dates become failure outcomes on the Report, and
// successful rows are appended to the store as they are read. Only I/O level
// problems (oversize, unreadable, malformed CSV) and a rejected header stop
// an import early, and those are recorded as a single fatal outcome.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/staffgrid/internal/core"
)

// DefaultMaxFileSize bounds an import file when Config.MaxFileSize is unset.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Status is the result of one row.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Label returns the display label shown next to a row result.
func (s Status) Label() string {
	switch s {
	case StatusSuccess:
		return "성공"
	case StatusFailure:
		return "실패"
	default:
		return string(s)
	}
}

// Kind classifies a failure outcome.
type Kind string

const (
	KindEmptyFile              Kind = "empty_file"
	KindHeaderColumnCount      Kind = "header_column_count"
	KindHeaderIdentifierColumn Kind = "header_identifier_column"
	KindHeaderLocale           Kind = "header_locale"
	KindEmptyName              Kind = "empty_name"
	KindUnparsableDate         Kind = "unparsable_date"
	KindResourceLimit          Kind = "resource_limit"
	KindRead                   Kind = "read"
)

// Outcome is one recorded row result. Row 1 is the header and row 0 is used
// for problems reading the file as a whole.
type Outcome struct {
	Row     int    `json:"row"`
	Status  Status `json:"status"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Report summarizes one import. Only failures are kept in Outcomes; the
// successes are counted and the stored records listed in Added.
type Report struct {
	ID           string          `json:"id"`
	FileName     string          `json:"fileName,omitempty"`
	Encoding     string          `json:"encoding,omitempty"`
	Locale       Locale          `json:"locale,omitempty"`
	Outcomes     []Outcome       `json:"outcomes"`
	SuccessCount int             `json:"successCount"`
	FailureCount int             `json:"failureCount"`
	Fatal        bool            `json:"fatal"`
	Added        []core.Employee `json:"added"`
	Duration     time.Duration   `json:"duration"`
}

func newReport(fileName string) *Report {
	return &Report{
		ID:       uuid.New().String(),
		FileName: fileName,
		Outcomes: []Outcome{},
		Added:    []core.Employee{},
	}
}

func (r *Report) fail(row int, kind Kind, err error) {
	var ve ValidationError
	if errors.As(err, &ve) && ve.Kind != "" {
		kind = ve.Kind
	}
	r.Outcomes = append(r.Outcomes, Outcome{
		Row:     row,
		Status:  StatusFailure,
		Kind:    kind,
		Message: err.Error(),
		Code:    core.MapError(err).Code,
	})
	r.FailureCount++
}

// reject records a failure that ends the import.
func (r *Report) reject(row int, kind Kind, err error) {
	r.fail(row, kind, err)
	r.Fatal = true
}

// Recorder observes finished imports.
type Recorder interface {
	ObserveImport(r *Report)
}

// Config configures a Pipeline. Zero values use defaults.
type Config struct {
	MaxFileSize int64
	Limiter     *core.ImportLimiter
	Recorder    Recorder
	Logger      *slog.Logger
}

// Pipeline imports CSV files into a store. It is safe for concurrent use;
// each import runs sequentially and the Limiter, when set, bounds how many
// run at once.
type Pipeline struct {
	store  *core.Store
	cfg    Config
	logger *slog.Logger
}

// New returns a Pipeline appending to store.
func New(store *core.Store, cfg Config) *Pipeline {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, cfg: cfg, logger: logger.With("component", "importer")}
}

// MaxFileSize returns the byte limit applied to each file.
func (p *Pipeline) MaxFileSize() int64 {
	return p.cfg.MaxFileSize
}

// Import reads a CSV file from r and appends every valid row to the store.
// If r is an io.Closer it is closed before Import returns.
//
// The returned error is non-nil only when the import limiter refuses a slot;
// in that case nothing was read.
func (p *Pipeline) Import(ctx context.Context, fileName string, r io.Reader) (*Report, error) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	if p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("import %s: %w", fileName, err)
		}
		defer p.cfg.Limiter.Release()
	}

	start := time.Now()
	report := newReport(fileName)
	logger := p.logger.With("import_id", report.ID, "file", fileName)

	p.run(report, r)

	report.Duration = time.Since(start)
	logger.Info("import finished",
		"encoding", report.Encoding,
		"success", report.SuccessCount,
		"failure", report.FailureCount,
		"fatal", report.Fatal,
		"duration", report.Duration,
	)
	if p.cfg.Recorder != nil {
		p.cfg.Recorder.ObserveImport(report)
	}
	return report, nil
}

// ImportFile opens path and imports it.
func (p *Pipeline) ImportFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		report := newReport(filepath.Base(path))
		report.reject(0, KindRead, fmt.Errorf("open file: %w", err))
		return report, nil
	}
	return p.Import(ctx, filepath.Base(path), f)
}

// Check runs the file and header checks without touching the store. Rows are
// still validated so the report shows every failure an import would record;
// SuccessCount counts the rows that would be added.
func (p *Pipeline) Check(_ context.Context, fileName string, r io.Reader) *Report {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	start := time.Now()
	report := newReport(fileName)
	p.process(report, r, nil)
	report.Duration = time.Since(start)
	return report
}

func (p *Pipeline) run(report *Report, r io.Reader) {
	p.process(report, r, func(e core.Employee) core.Employee {
		return p.store.Add(e)
	})
}

// process reads r and validates every row. add is called for each valid row;
// when nil, nothing is stored.
func (p *Pipeline) process(report *Report, r io.Reader, add func(core.Employee) core.Employee) {
	data, err := io.ReadAll(core.NewSizeLimitReader(r, p.cfg.MaxFileSize))
	if err != nil {
		if errors.Is(err, core.ErrTooLarge) {
			report.reject(0, KindResourceLimit, err)
			return
		}
		report.reject(0, KindRead, fmt.Errorf("read file: %w", err))
		return
	}

	text, enc, err := DetectAndDecode(data)
	if err != nil {
		report.reject(0, KindRead, err)
		return
	}
	report.Encoding = enc

	cr := csv.NewReader(bytes.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	record, err := cr.Read()
	if errors.Is(err, io.EOF) {
		report.reject(1, KindEmptyFile, errors.New("no data"))
		return
	}
	if err != nil {
		report.reject(0, KindRead, fmt.Errorf("invalid csv: %w", err))
		return
	}

	header, err := ValidateHeader(record)
	if err != nil {
		report.reject(1, KindHeaderLocale, err)
		return
	}
	report.Locale = header.Locale

	for row := 2; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			report.reject(row, KindRead, fmt.Errorf("invalid csv: %w", err))
			return
		}

		e, verr := parseRow(header, record)
		if verr != nil {
			report.fail(row, "", verr)
			continue
		}
		if add != nil {
			e = add(e)
			report.Added = append(report.Added, e)
		}
		report.SuccessCount++
	}
}

// parseRow converts one data record. Department may be empty.
func parseRow(h Header, record []string) (core.Employee, error) {
	name := h.field(record, ColName)
	if name == "" {
		return core.Employee{}, ValidationError{Kind: KindEmptyName, Field: englishHeader[ColName], Message: "name is empty"}
	}

	raw := h.field(record, ColJoinDate)
	joined, ok := core.ParseDate(raw)
	if !ok {
		return core.Employee{}, ValidationError{
			Kind:    KindUnparsableDate,
			Field:   englishHeader[ColJoinDate],
			Value:   raw,
			Message: fmt.Sprintf("unparsable date %q", raw),
		}
	}

	return core.Employee{
		Name:       name,
		Department: h.field(record, ColDepartment),
		JoinDate:   joined,
	}, nil
}
