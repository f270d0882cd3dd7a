// api/schemas/errors.go
package schemas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is a string type used for structured failure reporting in Outcomes.
// Using a custom type ensures that only predefined constants can be used where an
// ErrorCode is expected.
type ErrorCode string

const (
	// -- Query and UI errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeAssertionFailed ErrorCode = "ASSERTION_FAILED"

	// -- Resource and data errors --
	ErrCodeLifecycle      ErrorCode = "LIFECYCLE_ERROR"
	ErrCodeUpstreamAPI    ErrorCode = "UPSTREAM_API_ERROR"
	ErrCodeFixtureCorrupt ErrorCode = "FIXTURE_CORRUPT"

	// -- General execution errors --
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	ErrCodeCanceled         ErrorCode = "CANCELED"

	// -- Internal system errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

// Sentinels for errors.Is matching. Every typed error below unwraps to one of them.
var (
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("timed out")
	ErrLifecycle       = errors.New("session lifecycle violation")
	ErrUpstreamAPI     = errors.New("upstream api error")
	ErrFixtureCorrupt  = errors.New("fixture corrupt")
	ErrAssertion       = errors.New("assertion failed")
)

// ElementNotFoundError is returned when every candidate of a locator spec fails to resolve.
type ElementNotFoundError struct {
	Field string
	Tried []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found (tried %d candidates: %s)", e.Field, len(e.Tried), strings.Join(e.Tried, ", "))
}

func (e *ElementNotFoundError) Unwrap() error { return ErrElementNotFound }

// TimeoutError is produced when a caller converts an expired poll into an error.
type TimeoutError struct {
	What     string
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out waiting for %s after %d attempts (%s)", e.What, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// LifecycleError signals use of a session outside its ready state.
type LifecycleError struct {
	SessionID string
	State     string
	Op        string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("session %s: cannot %s in state %s", e.SessionID, e.Op, e.State)
}

func (e *LifecycleError) Unwrap() error { return ErrLifecycle }

// UpstreamAPIError carries an unexpected status from the target HTTP API.
type UpstreamAPIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *UpstreamAPIError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, body)
}

func (e *UpstreamAPIError) Unwrap() error { return ErrUpstreamAPI }

// FixtureCorruptError reports an unreadable or incomplete fixture file.
type FixtureCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FixtureCorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fixture %s is corrupt: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("fixture %s is corrupt: %s", e.Path, e.Reason)
}

// Unwrap exposes both the sentinel and the underlying decode error.
func (e *FixtureCorruptError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFixtureCorrupt, e.Err}
	}
	return []error{ErrFixtureCorrupt}
}

// AssertionError is returned by journeys when the observed state differs from the expected one.
type AssertionError struct {
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func (e *AssertionError) Unwrap() error { return ErrAssertion }

// CodeOf maps an error onto the ErrorCode reported in an Outcome.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrElementNotFound):
		return ErrCodeElementNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeoutError
	case errors.Is(err, ErrLifecycle):
		return ErrCodeLifecycle
	case errors.Is(err, ErrUpstreamAPI):
		return ErrCodeUpstreamAPI
	case errors.Is(err, ErrFixtureCorrupt):
		return ErrCodeFixtureCorrupt
	case errors.Is(err, ErrAssertion):
		return ErrCodeAssertionFailed
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	default:
		return ErrCodeExecutionFailure
	}
}
