// File: internal/orchestrator/orchestrator.go
// Description: Runs the actor tasks of one scenario, each against its own session
// context, and folds their outcomes into a verdict.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

var errNoTask = errors.New("actor spec has no task")

// Mode is the launch policy of one actor.
type Mode string

const (
	// ModeConcurrent actors get a session of their own and run alongside everything else.
	ModeConcurrent Mode = "concurrent"
	// ModeSequential actors share the scenario session and run in declaration order,
	// each starting after the previous outcome is recorded.
	ModeSequential Mode = "sequential"
)

// ActorSpec declares one actor of a scenario.
type ActorSpec struct {
	Task actor.Task
	Mode Mode
	// Optional outcomes are reported but do not affect the verdict.
	Optional bool
	// AcceptAlreadyExists lets an AlreadyExists outcome count as passing.
	AcceptAlreadyExists bool
}

// Scenario is a named set of actors.
type Scenario struct {
	Name string
	Tags []string
	// Kind is the kind of the shared session used by sequential actors. Empty means
	// the kind of the first sequential task.
	Kind   session.Kind
	Actors []ActorSpec
}

// Orchestrator schedules scenarios.
type Orchestrator struct {
	factory      session.Factory
	logger       *zap.Logger
	metrics      *observability.Metrics
	concurrency  int
	taskTimeout  time.Duration
	closeTimeout time.Duration
	actorOpts    actor.Options
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency caps how many concurrent actors run at once.
func WithConcurrency(n int) Option { return func(o *Orchestrator) { o.concurrency = n } }

// WithTaskTimeout bounds each actor task.
func WithTaskTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.taskTimeout = d } }

// WithCloseTimeout bounds session teardown.
func WithCloseTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.closeTimeout = d } }

// WithMetrics records outcomes, sessions and verdicts.
func WithMetrics(m *observability.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithActorOptions sets the options passed to actor.Execute.
func WithActorOptions(opts actor.Options) Option { return func(o *Orchestrator) { o.actorOpts = opts } }

// New creates an Orchestrator opening sessions through factory.
func New(factory session.Factory, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if factory == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator without a session factory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		factory:     factory,
		logger:      logger.Named("orchestrator"),
		concurrency: 4,
		taskTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.actorOpts.Logger == nil {
		o.actorOpts.Logger = logger
	}
	return o, nil
}

// Run executes every actor of sc and returns the verdict. It never panics and never
// fails: problems surface as Failure outcomes. Outcomes are listed in declaration order.
func (o *Orchestrator) Run(ctx context.Context, sc Scenario) schemas.Verdict {
	verdict := schemas.Verdict{
		RunID:     ulid.Make().String(),
		Scenario:  sc.Name,
		Tags:      sc.Tags,
		StartedAt: time.Now(),
	}
	logger := o.logger.With(zap.String("scenario", sc.Name), zap.String("run_id", verdict.RunID))
	logger.Info("Scenario starting.", zap.Int("actors", len(sc.Actors)))

	outcomes := make([]schemas.Outcome, len(sc.Actors))
	var sequential []int

	// Each goroutine writes only its own slot.
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, spec := range sc.Actors {
		if spec.Task == nil {
			outcomes[i] = failed("unknown", "", errNoTask)
			continue
		}
		if spec.Mode == ModeSequential {
			sequential = append(sequential, i)
			continue
		}
		g.Go(func() error {
			outcomes[i] = o.runIsolated(ctx, spec)
			return nil
		})
	}
	if len(sequential) > 0 {
		g.Go(func() error {
			o.runSequential(ctx, sc, sequential, outcomes)
			return nil
		})
	}
	_ = g.Wait()

	verdict.Passed = true
	for i, spec := range sc.Actors {
		out := &outcomes[i]
		out.Required = !spec.Optional
		out.Accepted = out.Status == schemas.StatusSuccess ||
			(out.Status == schemas.StatusAlreadyExists && spec.AcceptAlreadyExists)
		if out.Required && !out.Accepted {
			verdict.Passed = false
		}
		o.metrics.RecordOutcome(out.Actor, string(out.Status), out.Diagnostics.Duration)
	}
	verdict.Outcomes = outcomes
	verdict.FinishedAt = time.Now()
	o.metrics.RecordVerdict(verdict.Passed)

	logger.Info("Scenario finished.",
		zap.Bool("passed", verdict.Passed),
		zap.Int("failures", len(verdict.Failures())),
		zap.Duration("elapsed", verdict.FinishedAt.Sub(verdict.StartedAt)))
	return verdict
}

// runIsolated runs one actor in a session of its own.
func (o *Orchestrator) runIsolated(ctx context.Context, spec ActorSpec) (out schemas.Outcome) {
	name := actorName(spec.Task)
	defer o.guard(name, &out)

	sess, err := o.newSession(spec.Task.Kind())
	if err != nil {
		return failed(name, "", err)
	}
	err = session.Use(ctx, sess, func(ctx context.Context, s session.Surface) error {
		out = o.execute(ctx, spec.Task, s)
		return nil
	})
	if err != nil && out.Actor == "" {
		return failed(name, sess.ID(), err)
	}
	if err != nil {
		o.logger.Warn("Session release failed.", zap.String("actor", out.Actor), zap.Error(err))
	}
	return out
}

// runSequential runs the indexed actors one after another in one shared session. If
// the session cannot be opened every one of them fails with that error. A panic
// outside the actors fails every slot that has no outcome yet.
func (o *Orchestrator) runSequential(ctx context.Context, sc Scenario, idx []int, outcomes []schemas.Outcome) {
	done := 0
	id := ""
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		o.logger.Error("Recovered panic in shared session.", zap.String("scenario", sc.Name), zap.Any("panic", r))
		stack := string(debug.Stack())
		for _, i := range idx[done:] {
			out := failed(actorName(sc.Actors[i].Task), id, fmt.Errorf("panic: %v", r))
			out.Code = schemas.ErrCodeExecutorPanic
			out.Diagnostics.Stack = stack
			outcomes[i] = out
		}
	}()

	kind := sc.Kind
	if kind == "" {
		kind = sc.Actors[idx[0]].Task.Kind()
	}

	sess, err := o.newSession(kind)
	if err == nil {
		id = sess.ID()
		err = session.Use(ctx, sess, func(ctx context.Context, s session.Surface) error {
			for _, i := range idx {
				outcomes[i] = o.executeGuarded(ctx, sc.Actors[i].Task, s)
				done++
			}
			return nil
		})
	}
	if err == nil {
		return
	}
	if done == len(idx) {
		o.logger.Warn("Shared session release failed.", zap.String("scenario", sc.Name), zap.Error(err))
		return
	}
	for _, i := range idx[done:] {
		outcomes[i] = failed(actorName(sc.Actors[i].Task), id, err)
	}
}

func (o *Orchestrator) newSession(kind session.Kind) (*session.Context, error) {
	prov, err := o.factory(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s session: %w", kind, err)
	}
	opts := []session.Option{session.WithRecorder(o.metrics)}
	if o.closeTimeout > 0 {
		opts = append(opts, session.WithCloseTimeout(o.closeTimeout))
	}
	return session.New(prov, o.logger, opts...), nil
}

func (o *Orchestrator) execute(ctx context.Context, task actor.Task, s session.Surface) schemas.Outcome {
	if o.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.taskTimeout)
		defer cancel()
	}
	return actor.Execute(ctx, task, s, o.actorOpts)
}

func (o *Orchestrator) executeGuarded(ctx context.Context, task actor.Task, s session.Surface) (out schemas.Outcome) {
	defer o.guard(actorName(task), &out)
	return o.execute(ctx, task, s)
}

// guard turns a panic outside actor.Execute, e.g. in a provisioner, into a failure.
func (o *Orchestrator) guard(name string, out *schemas.Outcome) {
	r := recover()
	if r == nil {
		return
	}
	o.logger.Error("Recovered panic while running actor.", zap.String("actor", name), zap.Any("panic", r))
	*out = failed(name, out.SessionID, fmt.Errorf("panic: %v", r))
	out.Code = schemas.ErrCodeExecutorPanic
	out.Diagnostics.Stack = string(debug.Stack())
}

// actorName is task.Name(), or "unknown" when the task is nil or Name panics.
func actorName(task actor.Task) (name string) {
	name = "unknown"
	if task == nil {
		return name
	}
	defer func() {
		if recover() != nil {
			name = "unknown"
		}
	}()
	return task.Name()
}

// failed is the outcome of an actor that never got to run.
func failed(name, sessionID string, err error) schemas.Outcome {
	code := schemas.CodeOf(err)
	switch {
	case errors.Is(err, session.ErrLayerPanic):
		code = schemas.ErrCodeExecutorPanic
	case code == schemas.ErrCodeExecutionFailure:
		code = schemas.ErrCodeLifecycle
	}
	return schemas.Outcome{
		Actor:     name,
		SessionID: sessionID,
		Status:    schemas.StatusFailure,
		Reason:    err.Error(),
		Code:      code,
	}
}
