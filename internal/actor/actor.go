// internal/actor/actor.go

// Package actor runs one simulated user's journey against one session surface and
// turns whatever happens into exactly one schemas.Outcome.
package actor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

const (
	defaultDiagnosticsTimeout = 5 * time.Second
	bodyExcerptLimit          = 512
)

// Task is one journey. Run may return an AlreadyExists value to report that the
// journey's goal was satisfied before it started.
type Task interface {
	Name() string
	// Kind is the session kind the task needs when it gets a session of its own.
	Kind() session.Kind
	Run(ctx context.Context, s session.Surface) (any, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	TaskKind session.Kind
	Fn       func(ctx context.Context, s session.Surface) (any, error)
}

func (f TaskFunc) Name() string       { return f.TaskName }
func (f TaskFunc) Kind() session.Kind { return f.TaskKind }
func (f TaskFunc) Run(ctx context.Context, s session.Surface) (any, error) {
	return f.Fn(ctx, s)
}

// AlreadyExists is returned as a task value when the precondition the task would
// have established already held, e.g. a duplicate registration.
type AlreadyExists struct {
	Value  any
	Reason string
}

// Options tunes Execute.
type Options struct {
	// Screenshots enables a full page capture on failure for interactive surfaces.
	Screenshots bool
	// DiagnosticsTimeout bounds diagnostic capture. It runs even if ctx is cancelled.
	DiagnosticsTimeout time.Duration
	Logger             *zap.Logger
}

// Execute runs task on s and converts its result, error or panic into an Outcome. It
// never panics and never returns without an Outcome.
func Execute(ctx context.Context, task Task, s session.Surface, opts Options) (out schemas.Outcome) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("actor").With(zap.String("session_id", s.SessionID))

	start := time.Now()
	name := "unknown"
	out = schemas.Outcome{Actor: name, SessionID: s.SessionID}

	defer func() {
		if r := recover(); r != nil {
			out.Actor = name
			out.Status = schemas.StatusFailure
			out.Value = nil
			out.Reason = fmt.Sprintf("panic: %v", r)
			out.Code = schemas.ErrCodeExecutorPanic
			out.Diagnostics = capture(ctx, name, s, opts)
			out.Diagnostics.Stack = string(debug.Stack())
			logger.Error("Actor panicked.", zap.String("actor", name), zap.Any("panic", r))
		}
		out.Diagnostics.Duration = time.Since(start)
	}()

	if task == nil {
		out.Status = schemas.StatusFailure
		out.Reason = errNoTask.Error()
		out.Code = schemas.CodeOf(errNoTask)
		return out
	}
	name = task.Name()
	out.Actor = name
	logger = logger.With(zap.String("actor", name))

	value, err := task.Run(ctx, s)
	switch {
	case err != nil:
		out.Status = schemas.StatusFailure
		out.Reason = err.Error()
		out.Code = schemas.CodeOf(err)
		out.Value = value
		out.Diagnostics = capture(ctx, name, s, opts)
		logger.Warn("Actor failed.", zap.Error(err), zap.String("code", string(out.Code)))
	default:
		var exists AlreadyExists
		if ae, ok := value.(AlreadyExists); ok {
			exists = ae
			out.Status = schemas.StatusAlreadyExists
			out.Value = exists.Value
			out.Reason = exists.Reason
		} else {
			out.Status = schemas.StatusSuccess
			out.Value = value
		}
		if s.API != nil {
			out.Diagnostics.LastHTTPStatus = s.API.LastStatus()
		}
		logger.Info("Actor finished.", zap.String("status", string(out.Status)))
	}
	return out
}

// capture collects what is known about the surface. It never fails: anything that
// cannot be read is left empty.
func capture(ctx context.Context, name string, s session.Surface, opts Options) (d schemas.Diagnostics) {
	defer func() {
		// A broken surface must not turn a failure into a panic.
		_ = recover()
	}()

	if s.API != nil {
		d.LastHTTPStatus = s.API.LastStatus()
	}
	if s.Page == nil {
		return d
	}

	timeout := opts.DiagnosticsTimeout
	if timeout <= 0 {
		timeout = defaultDiagnosticsTimeout
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if u, err := s.Page.URL(dctx); err == nil {
		d.LastURL = u
	}
	if t, err := s.Page.Title(dctx); err == nil {
		d.PageTitle = t
	}
	if body, err := s.Page.Text(dctx, "body"); err == nil {
		d.BodyExcerpt = excerpt(body, bodyExcerptLimit)
	}
	if opts.Screenshots {
		if path, err := s.Page.Screenshot(dctx, name); err == nil {
			d.Screenshot = path
		}
	}
	return d
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

var errNoTask = errors.New("no task to run")

// errNoFixture is returned by journeys that need persisted credentials when none exist.
var errNoFixture = errors.New("no fixture credentials persisted yet")
