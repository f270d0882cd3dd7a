// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Report is the document written by the JSON reporter.
type Report struct {
	Suite       string            `json:"suite"`
	GeneratedAt time.Time         `json:"generated_at"`
	Summary     summary           `json:"summary"`
	Verdicts    []schemas.Verdict `json:"verdicts"`
}

// JSONReporter collects verdicts and writes them as one indented JSON document on
// Close. It is thread safe.
type JSONReporter struct {
	writer   io.WriteCloser
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
	verdicts []schemas.Verdict
	closed   bool
}

// NewJSONReporter creates a reporter that takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		now:    time.Now,
	}
}

// Write buffers v until Close.
func (r *JSONReporter) Write(v schemas.Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errReporterClosed
	}
	r.verdicts = append(r.verdicts, v)
	return nil
}

// Close encodes the report and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	verdicts := r.verdicts
	if verdicts == nil {
		verdicts = []schemas.Verdict{}
	}
	report := Report{
		Suite:       SuiteName,
		GeneratedAt: r.now().UTC(),
		Summary:     summarize(verdicts),
		Verdicts:    verdicts,
	}
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	werr := enc.Encode(report)
	cerr := r.writer.Close()
	if werr != nil {
		return fmt.Errorf("failed to encode json report: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close json report: %w", cerr)
	}
	r.logger.Debug("JSON report written.", zap.Int("scenarios", len(verdicts)))
	return nil
}
