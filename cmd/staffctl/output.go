package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/staffgrid/internal/importer"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// colorFor reports whether w should get ANSI colours.
func colorFor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

type painter bool

func (p painter) wrap(code, s string) string {
	if !p {
		return s
	}
	return code + s + colorReset
}

func (p painter) green(s string) string  { return p.wrap(colorGreen, s) }
func (p painter) red(s string) string    { return p.wrap(colorRed, s) }
func (p painter) yellow(s string) string { return p.wrap(colorYellow, s) }
func (p painter) gray(s string) string   { return p.wrap(colorGray, s) }

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// printReports writes import reports in the selected format.
func printReports(w io.Writer, format string, reports []*importer.Report) error {
	if format != formatText {
		return writeStructured(w, format, reports)
	}

	p := painter(colorFor(w))
	for _, r := range reports {
		status := p.green("ok")
		switch {
		case r.Fatal:
			status = p.red("rejected")
		case r.FailureCount > 0:
			status = p.yellow("partial")
		}
		fmt.Fprintf(w, "%s: %s, %d added, %d failed", r.FileName, status, r.SuccessCount, r.FailureCount)
		if r.Encoding != "" {
			fmt.Fprintf(w, " %s", p.gray(fmt.Sprintf("(%s, %s)", r.Encoding, r.Locale)))
		}
		fmt.Fprintln(w)

		for _, o := range r.Outcomes {
			line := fmt.Sprintf("  row %-4d %s %-26s %s", o.Row, p.red(o.Status.Label()), o.Kind, o.Message)
			if o.Code != "" {
				line += " " + p.gray("["+o.Code+"]")
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

// reportsFailed returns an error when any report was rejected outright.
func reportsFailed(reports []*importer.Report) error {
	var rejected int
	for _, r := range reports {
		if r.Fatal {
			rejected++
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d file(s) rejected", rejected, len(reports))
	}
	return nil
}
