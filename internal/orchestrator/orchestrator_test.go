// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/fakedemoqa"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/pages"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// -- Stub sessions --

type counters struct {
	opened, closed atomic.Int32
}

type stubProvisioner struct {
	kind      session.Kind
	c         *counters
	openErr   error
	openPanic bool
}

func (p *stubProvisioner) Kind() session.Kind { return p.kind }

func (p *stubProvisioner) Layers() []session.Layer {
	return []session.Layer{{
		Name: "stub",
		Open: func(context.Context) error {
			if p.openErr != nil {
				return p.openErr
			}
			if p.openPanic {
				panic("driver crashed")
			}
			p.c.opened.Add(1)
			return nil
		},
		Close: func(context.Context) error {
			p.c.closed.Add(1)
			return nil
		},
	}}
}

func (p *stubProvisioner) Surface() session.Surface { return session.Surface{} }

func stubFactory(c *counters) session.Factory {
	return func(kind session.Kind) (session.Provisioner, error) {
		return &stubProvisioner{kind: kind, c: c}, nil
	}
}

func task(name string, fn func(ctx context.Context, s session.Surface) (any, error)) actor.Task {
	return actor.TaskFunc{TaskName: name, TaskKind: session.KindAPI, Fn: fn}
}

func newOrchestrator(t *testing.T, factory session.Factory, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(factory, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return o
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestRun_ConcurrentOutcomesSurvivePanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	var c counters
	o := newOrchestrator(t, stubFactory(&c), WithConcurrency(3))

	const n = 8
	sc := Scenario{Name: "panics"}
	for i := range n {
		name := fmt.Sprintf("actor-%d", i)
		sc.Actors = append(sc.Actors, ActorSpec{Task: task(name, func(context.Context, session.Surface) (any, error) {
			switch i % 3 {
			case 0:
				panic("actor blew up")
			case 1:
				return nil, errors.New("plain failure")
			}
			return i, nil
		})})
	}

	v := o.Run(context.Background(), sc)
	require.Len(t, v.Outcomes, n)
	for i, out := range v.Outcomes {
		assert.Equal(t, fmt.Sprintf("actor-%d", i), out.Actor)
		switch i % 3 {
		case 0:
			assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Code)
		case 1:
			assert.Equal(t, schemas.ErrCodeExecutionFailure, out.Code)
		default:
			assert.Equal(t, schemas.StatusSuccess, out.Status)
			assert.Equal(t, i, out.Value)
		}
	}
	assert.False(t, v.Passed)
	assert.Len(t, v.Failures(), 6)
	assert.EqualValues(t, n, c.opened.Load())
	assert.EqualValues(t, n, c.closed.Load())
	assert.NotEmpty(t, v.RunID)
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	var c counters
	o := newOrchestrator(t, stubFactory(&c), WithConcurrency(2))

	var inFlight, peak atomic.Int32
	work := func(context.Context, session.Surface) (any, error) {
		now := inFlight.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}
	sc := Scenario{Name: "limited"}
	for i := range 6 {
		sc.Actors = append(sc.Actors, ActorSpec{Task: task(fmt.Sprintf("a%d", i), work)})
	}

	v := o.Run(context.Background(), sc)
	assert.True(t, v.Passed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_SequentialSharesOneSessionInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var c counters
	o := newOrchestrator(t, stubFactory(&c))

	var mu sync.Mutex
	var order []string
	sessions := map[string]bool{}
	step := func(name string) actor.Task {
		return task(name, func(_ context.Context, s session.Surface) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+":start")
			sessions[s.SessionID] = true
			time.Sleep(5 * time.Millisecond)
			order = append(order, name+":end")
			return nil, nil
		})
	}

	v := o.Run(context.Background(), Scenario{Name: "seq", Actors: []ActorSpec{
		{Task: step("first"), Mode: ModeSequential},
		{Task: step("second"), Mode: ModeSequential},
		{Task: step("third"), Mode: ModeSequential},
	}})

	assert.True(t, v.Passed)
	assert.Equal(t, []string{"first:start", "first:end", "second:start", "second:end", "third:start", "third:end"}, order)
	assert.Len(t, sessions, 1)
	assert.EqualValues(t, 1, c.opened.Load())
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestRun_Aggregation(t *testing.T) {
	var c counters
	o := newOrchestrator(t, stubFactory(&c))
	dup := task("dup", func(context.Context, session.Surface) (any, error) {
		return actor.AlreadyExists{Reason: "User exists!"}, nil
	})
	fail := task("fail", func(context.Context, session.Surface) (any, error) {
		return nil, &schemas.AssertionError{Expected: "x", Actual: "y"}
	})

	tests := []struct {
		name   string
		specs  []ActorSpec
		passed bool
	}{
		{"already exists rejected by default", []ActorSpec{{Task: dup}}, false},
		{"already exists accepted when declared", []ActorSpec{{Task: dup, AcceptAlreadyExists: true}}, true},
		{"optional failure does not fail the verdict", []ActorSpec{{Task: fail, Optional: true}}, true},
		{"required failure fails the verdict", []ActorSpec{{Task: fail}}, false},
		{"no actors passes", nil, true},
		{"missing task fails", []ActorSpec{{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := o.Run(context.Background(), Scenario{Name: tt.name, Actors: tt.specs})
			assert.Equal(t, tt.passed, v.Passed)
			assert.Len(t, v.Outcomes, len(tt.specs))
		})
	}
}

func TestRun_SessionFailures(t *testing.T) {
	t.Run("factory error", func(t *testing.T) {
		o := newOrchestrator(t, func(session.Kind) (session.Provisioner, error) {
			return nil, errors.New("no browser")
		})
		ran := false
		v := o.Run(context.Background(), Scenario{Name: "broken", Actors: []ActorSpec{
			{Task: task("a", func(context.Context, session.Surface) (any, error) { ran = true; return nil, nil })},
		}})
		require.Len(t, v.Outcomes, 1)
		assert.False(t, ran)
		assert.Equal(t, schemas.StatusFailure, v.Outcomes[0].Status)
		assert.Equal(t, schemas.ErrCodeLifecycle, v.Outcomes[0].Code)
		assert.Contains(t, v.Outcomes[0].Reason, "no browser")
	})

	t.Run("layer open error fails every sequential actor", func(t *testing.T) {
		var c counters
		o := newOrchestrator(t, func(kind session.Kind) (session.Provisioner, error) {
			return &stubProvisioner{kind: kind, c: &c, openErr: errors.New("launch failed")}, nil
		})
		noop := func(context.Context, session.Surface) (any, error) { return nil, nil }
		v := o.Run(context.Background(), Scenario{Name: "broken", Actors: []ActorSpec{
			{Task: task("a", noop), Mode: ModeSequential},
			{Task: task("b", noop), Mode: ModeSequential},
		}})
		require.Len(t, v.Outcomes, 2)
		for _, out := range v.Outcomes {
			assert.Equal(t, schemas.StatusFailure, out.Status)
			assert.Contains(t, out.Reason, "launch failed")
		}
	})
}

type brokenTask struct {
	name, kind bool
}

func (b brokenTask) Name() string {
	if b.name {
		panic("name unavailable")
	}
	return "broken"
}

func (b brokenTask) Kind() session.Kind {
	if b.kind {
		panic("kind unavailable")
	}
	return session.KindAPI
}

func (brokenTask) Run(context.Context, session.Surface) (any, error) { return nil, nil }

func TestRun_PanicsOutsideActors(t *testing.T) {
	noop := func(context.Context, session.Surface) (any, error) { return nil, nil }

	t.Run("panicking layer open fails every sequential actor", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		var c counters
		o := newOrchestrator(t, func(kind session.Kind) (session.Provisioner, error) {
			return &stubProvisioner{kind: kind, c: &c, openPanic: true}, nil
		})
		var v schemas.Verdict
		require.NotPanics(t, func() {
			v = o.Run(context.Background(), Scenario{Name: "crash", Actors: []ActorSpec{
				{Task: task("a", noop), Mode: ModeSequential},
				{Task: task("b", noop), Mode: ModeSequential},
				{Task: task("c", noop)},
			}})
		})
		require.Len(t, v.Outcomes, 3)
		for i, out := range v.Outcomes {
			assert.Equal(t, []string{"a", "b", "c"}[i], out.Actor)
			assert.Equal(t, schemas.StatusFailure, out.Status)
			assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Code)
			assert.Contains(t, out.Reason, "driver crashed")
		}
		assert.False(t, v.Passed)
		assert.Zero(t, c.opened.Load())
		assert.Zero(t, c.closed.Load())
	})

	t.Run("panicking factory fails every sequential actor", func(t *testing.T) {
		o := newOrchestrator(t, func(session.Kind) (session.Provisioner, error) {
			panic("factory crashed")
		})
		var v schemas.Verdict
		require.NotPanics(t, func() {
			v = o.Run(context.Background(), Scenario{Name: "crash", Actors: []ActorSpec{
				{Task: task("a", noop), Mode: ModeSequential},
				{Task: task("b", noop), Mode: ModeSequential},
			}})
		})
		require.Len(t, v.Outcomes, 2)
		for _, out := range v.Outcomes {
			assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Code)
			assert.Contains(t, out.Reason, "factory crashed")
			assert.NotEmpty(t, out.Diagnostics.Stack)
		}
	})

	t.Run("panicking task kind and name are contained", func(t *testing.T) {
		var c counters
		o := newOrchestrator(t, stubFactory(&c))
		var v schemas.Verdict
		require.NotPanics(t, func() {
			v = o.Run(context.Background(), Scenario{Name: "crash", Actors: []ActorSpec{
				{Task: brokenTask{kind: true}, Mode: ModeSequential},
				{Task: brokenTask{name: true, kind: true}},
				{Task: brokenTask{name: true}},
			}})
		})
		require.Len(t, v.Outcomes, 3)
		assert.Equal(t, "broken", v.Outcomes[0].Actor)
		assert.Equal(t, schemas.ErrCodeExecutorPanic, v.Outcomes[0].Code)
		assert.Equal(t, "unknown", v.Outcomes[1].Actor)
		assert.Equal(t, schemas.ErrCodeExecutorPanic, v.Outcomes[1].Code)
		assert.Equal(t, "unknown", v.Outcomes[2].Actor)
		assert.Equal(t, schemas.ErrCodeExecutorPanic, v.Outcomes[2].Code)
	})
}

func TestRun_TaskTimeoutIsLocal(t *testing.T) {
	var c counters
	o := newOrchestrator(t, stubFactory(&c), WithTaskTimeout(50*time.Millisecond))

	v := o.Run(context.Background(), Scenario{Name: "timeouts", Actors: []ActorSpec{
		{Task: task("slow", func(ctx context.Context, _ session.Surface) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})},
		{Task: task("fast", func(context.Context, session.Surface) (any, error) { return "done", nil })},
	}})

	require.Len(t, v.Outcomes, 2)
	assert.Equal(t, schemas.ErrCodeTimeoutError, v.Outcomes[0].Code)
	assert.Equal(t, schemas.StatusSuccess, v.Outcomes[1].Status)
}

func TestRun_RecordsMetrics(t *testing.T) {
	var c counters
	m := observability.NewMetrics()
	o := newOrchestrator(t, stubFactory(&c), WithMetrics(m))

	o.Run(context.Background(), Scenario{Name: "metrics", Actors: []ActorSpec{
		{Task: task("ok", func(context.Context, session.Surface) (any, error) { return nil, nil })},
	}})

	n, err := testutil.GatherAndCount(m.Registry, "e2e_actor_outcomes_total", "e2e_scenario_verdicts_total", "e2e_sessions_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3)
}

// -- Against the fake target --

func TestRun_TwoConcurrentActorsAgainstFakeTarget(t *testing.T) {
	srv := fakedemoqa.New()
	t.Cleanup(srv.Close)
	logger := zaptest.NewLogger(t)

	factory := func(kind session.Kind) (session.Provisioner, error) {
		return srv.Provisioner(kind, func() (session.APIClient, error) {
			return apiclient.New(apiclient.Options{BaseURL: srv.URL}, logger)
		}), nil
	}
	store, err := fixture.NewStore(filepath.Join(t.TempDir(), "data.json"), logger)
	require.NoError(t, err)
	cfg := config.NewDefaultConfig()
	env := actor.Env{
		Pages: pages.Deps{
			BaseURL: srv.URL,
			Catalog: locator.NewCatalog(map[string][]config.LocatorCandidate{
				locator.LogoutButton: {{Selector: "#submit", Timeout: 500 * time.Millisecond}},
			}),
			Strategy: locator.NewStrategy(logger, time.Second),
			Poll:     cfg.Poll(),
			Logger:   logger,
		},
		Fixture: store,
		Logger:  logger,
	}

	o := newOrchestrator(t, factory, WithConcurrency(2), WithTaskTimeout(20*time.Second))
	v := o.Run(context.Background(), Scenario{Name: "two users", Actors: []ActorSpec{
		{Task: actor.RegisterViaAPI{Env: env, Fresh: true}},
		{Task: actor.LoginInvalid{Env: env}},
	}})

	require.Len(t, v.Outcomes, 2)
	for _, out := range v.Outcomes {
		assert.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
	}
	assert.NotEqual(t, v.Outcomes[0].SessionID, v.Outcomes[1].SessionID)
	assert.True(t, v.Passed)
	assert.Equal(t, 2, srv.SessionsOpened())
	assert.Equal(t, 0, srv.OpenSessions())
}
