// internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
)

// Supported report formats.
const (
	FormatJUnit = "junit"
	FormatJSON  = "json"
)

// Reporter defines the interface for writing scenario verdicts to an output.
type Reporter interface {
	// Write records a single verdict.
	Write(v schemas.Verdict) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case FormatJUnit, FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
			}
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == FormatJUnit {
		return NewJUnitReporter(writer), nil
	}
	return NewJSONReporter(writer), nil
}

// multi fans every verdict out to several reporters.
type multi []Reporter

// Multi returns a reporter writing to all of rs. Nil entries are skipped.
func Multi(rs ...Reporter) Reporter {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Write(v schemas.Verdict) error {
	var errs []error
	for _, r := range m {
		if err := r.Write(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// summary counts verdicts by result.
type summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Outcomes int `json:"outcomes"`
}

func summarize(vs []schemas.Verdict) summary {
	s := summary{Total: len(vs)}
	for _, v := range vs {
		if v.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.Outcomes += len(v.Outcomes)
	}
	return s
}
