// internal/reporting/junit_reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
)

// SuiteName is the name of the top level testsuites element.
const SuiteName = "demoqa-e2e"

var errReporterClosed = errors.New("reporter already closed")

// JUnitReporter renders verdicts as a JUnit XML document. Each scenario becomes a
// testsuite and each actor outcome a testcase. The document is written on Close.
// It is thread safe.
type JUnitReporter struct {
	writer   io.WriteCloser
	logger   *zap.Logger
	mu       sync.Mutex
	verdicts []schemas.Verdict
	closed   bool
}

// NewJUnitReporter creates a reporter that takes ownership of writer.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{
		writer: writer,
		logger: observability.GetLogger().Named("junit_reporter"),
	}
}

// Write buffers v until Close.
func (r *JUnitReporter) Write(v schemas.Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errReporterClosed
	}
	r.verdicts = append(r.verdicts, v)
	return nil
}

// Close renders the document and closes the writer.
func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	doc := BuildJUnit(r.verdicts)
	_, werr := doc.WriteTo(r.writer)
	cerr := r.writer.Close()
	if werr != nil {
		return fmt.Errorf("failed to write junit report: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close junit report: %w", cerr)
	}
	r.logger.Debug("JUnit report written.", zap.Int("scenarios", len(r.verdicts)))
	return nil
}

// BuildJUnit renders vs into a JUnit XML document.
func BuildJUnit(vs []schemas.Verdict) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", SuiteName)

	var tests, failures, skipped int
	var total time.Duration
	for _, v := range vs {
		suite, st := junitSuite(v)
		root.AddChild(suite)
		tests += st.tests
		failures += st.failures
		skipped += st.skipped
		total += v.FinishedAt.Sub(v.StartedAt)
	}
	root.CreateAttr("tests", strconv.Itoa(tests))
	root.CreateAttr("failures", strconv.Itoa(failures))
	root.CreateAttr("skipped", strconv.Itoa(skipped))
	root.CreateAttr("time", seconds(total))

	doc.Indent(2)
	return doc
}

type suiteTally struct {
	tests, failures, skipped int
}

func junitSuite(v schemas.Verdict) (*etree.Element, suiteTally) {
	suite := etree.NewElement("testsuite")
	suite.CreateAttr("name", v.Scenario)
	if !v.StartedAt.IsZero() {
		suite.CreateAttr("timestamp", v.StartedAt.UTC().Format(time.RFC3339))
	}
	suite.CreateAttr("time", seconds(v.FinishedAt.Sub(v.StartedAt)))

	props := suite.CreateElement("properties")
	addProperty(props, "run_id", v.RunID)
	for _, tag := range v.Tags {
		addProperty(props, "tag", tag)
	}

	var t suiteTally
	for _, o := range v.Outcomes {
		t.tests++
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", o.Actor)
		tc.CreateAttr("classname", v.Scenario)
		tc.CreateAttr("time", seconds(o.Diagnostics.Duration))

		switch {
		case o.Accepted:
			if o.Status == schemas.StatusAlreadyExists {
				tc.CreateElement("system-out").SetText("already exists")
			}
		case !o.Required:
			t.skipped++
			tc.CreateElement("skipped").CreateAttr("message", "optional: "+o.Reason)
		default:
			t.failures++
			failure := tc.CreateElement("failure")
			failure.CreateAttr("message", o.Reason)
			failure.CreateAttr("type", string(o.Code))
			failure.SetText(diagnosticsText(o))
		}
	}
	suite.CreateAttr("tests", strconv.Itoa(t.tests))
	suite.CreateAttr("failures", strconv.Itoa(t.failures))
	suite.CreateAttr("skipped", strconv.Itoa(t.skipped))
	return suite, t
}

func addProperty(props *etree.Element, name, value string) {
	if value == "" {
		return
	}
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

func diagnosticsText(o schemas.Outcome) string {
	d := o.Diagnostics
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line("status", string(o.Status))
	line("session", o.SessionID)
	line("url", d.LastURL)
	line("title", d.PageTitle)
	if d.LastHTTPStatus != 0 {
		line("http_status", strconv.Itoa(d.LastHTTPStatus))
	}
	line("screenshot", d.Screenshot)
	line("body", d.BodyExcerpt)
	line("stack", d.Stack)
	return b.String()
}

func seconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
