// api/schemas/errors_test.go
package schemas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"element not found", &ElementNotFoundError{Field: "loginError", Tried: []string{"#name"}}, ErrCodeElementNotFound},
		{"wrapped timeout", fmt.Errorf("waiting: %w", &TimeoutError{What: "modal"}), ErrCodeTimeoutError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeoutError},
		{"lifecycle", &LifecycleError{SessionID: "s", State: "closed", Op: "page"}, ErrCodeLifecycle},
		{"upstream", &UpstreamAPIError{Method: "POST", Path: "/x", Status: 502}, ErrCodeUpstreamAPI},
		{"fixture", &FixtureCorruptError{Path: "f.json", Reason: "missing password"}, ErrCodeFixtureCorrupt},
		{"assertion", &AssertionError{Expected: "a", Actual: "b"}, ErrCodeAssertionFailed},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"other", errors.New("boom"), ErrCodeExecutionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestFixtureCorruptError_UnwrapsBoth(t *testing.T) {
	err := &FixtureCorruptError{Path: "f.json", Reason: "decode", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, err, ErrFixtureCorrupt)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "f.json")
}

func TestUpstreamAPIError_TruncatesBody(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	err := &UpstreamAPIError{Method: "GET", Path: "/BookStore/v1/Books", Status: 500, Body: string(long)}
	assert.Contains(t, err.Error(), "...")
	assert.Less(t, len(err.Error()), 320)
}

func TestVerdict_Failures(t *testing.T) {
	v := Verdict{Outcomes: []Outcome{
		{Actor: "a", Required: true, Accepted: true},
		{Actor: "b", Required: true, Accepted: false},
		{Actor: "c", Required: false, Accepted: false},
	}}
	fails := v.Failures()
	if assert.Len(t, fails, 1) {
		assert.Equal(t, "b", fails[0].Actor)
	}
}
