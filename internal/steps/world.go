// internal/steps/world.go
package steps

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/orchestrator"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// Tags recognised on scenarios.
const (
	TagAPI = "@api"
	// TagAcceptExisting lets duplicate registrations count as passing.
	TagAcceptExisting = "@accept-existing"
)

// selfLabel is the label of journeys declared in the first person.
const selfLabel = "I"

type worldKey struct{}

var errNoWorld = errors.New("no scenario world in context")

// declared is one journey a step asked for, not yet run.
type declared struct {
	label string
	spec  orchestrator.ActorSpec
}

// World is the per-scenario state shared by step bindings. It only ever holds what
// steps declared and what the orchestrator reported back.
type World struct {
	Name string
	Tags []string
	Kind session.Kind

	// Credentials chosen by a Given step, used by token and account journeys.
	Credentials schemas.Credentials
	// Page the scenario navigated to, informational.
	Page string

	pending  []declared
	labels   []string
	verdicts []schemas.Verdict
}

func newWorld(name string, tags []string) *World {
	kind := session.KindInteractive
	if slices.Contains(tags, TagAPI) {
		kind = session.KindAPI
	}
	return &World{Name: name, Tags: tags, Kind: kind}
}

func withWorld(ctx context.Context, w *World) context.Context {
	return context.WithValue(ctx, worldKey{}, w)
}

// WorldFrom returns the scenario world carried by ctx.
func WorldFrom(ctx context.Context) (*World, error) {
	w, ok := ctx.Value(worldKey{}).(*World)
	if !ok || w == nil {
		return nil, errNoWorld
	}
	return w, nil
}

// declare queues a journey under label. Journeys declared by "I" share the scenario
// session; any other label gets a session of its own.
func (w *World) declare(label string, task actor.Task) *orchestrator.ActorSpec {
	mode := orchestrator.ModeConcurrent
	if label == selfLabel {
		mode = orchestrator.ModeSequential
	}
	w.pending = append(w.pending, declared{label: label, spec: orchestrator.ActorSpec{
		Task:                task,
		Mode:                mode,
		AcceptAlreadyExists: slices.Contains(w.Tags, TagAcceptExisting),
	}})
	return &w.pending[len(w.pending)-1].spec
}

// run executes every pending journey as one batch.
func (w *World) run(ctx context.Context, o *orchestrator.Orchestrator) {
	if len(w.pending) == 0 {
		return
	}
	sc := orchestrator.Scenario{Name: w.Name, Tags: w.Tags, Kind: w.Kind}
	for _, d := range w.pending {
		sc.Actors = append(sc.Actors, d.spec)
		w.labels = append(w.labels, d.label)
	}
	w.pending = nil
	w.verdicts = append(w.verdicts, o.Run(ctx, sc))
}

// outcomes lists every recorded outcome in declaration order.
func (w *World) outcomes() []schemas.Outcome {
	var all []schemas.Outcome
	for _, v := range w.verdicts {
		all = append(all, v.Outcomes...)
	}
	return all
}

// outcome returns the latest outcome of journey declared under label.
func (w *World) outcome(label, journey string) (schemas.Outcome, error) {
	all := w.outcomes()
	for i := len(all) - 1; i >= 0; i-- {
		if w.labels[i] == label && all[i].Actor == journey {
			return all[i], nil
		}
	}
	return schemas.Outcome{}, fmt.Errorf("no %q journey was run for %s", journey, label)
}

// accepted is outcome plus a check that it counted as passing.
func (w *World) accepted(label, journey string) (schemas.Outcome, error) {
	out, err := w.outcome(label, journey)
	if err != nil {
		return out, err
	}
	if !out.Accepted {
		return out, fmt.Errorf("%s %s: %s (%s)", label, journey, out.Reason, out.Code)
	}
	return out, nil
}

// Verdict folds every batch into one verdict for the scenario.
func (w *World) Verdict() schemas.Verdict {
	v := schemas.Verdict{Scenario: w.Name, Tags: w.Tags, Passed: true}
	for i, b := range w.verdicts {
		if i == 0 {
			v.RunID = b.RunID
			v.StartedAt = b.StartedAt
		}
		v.FinishedAt = b.FinishedAt
		v.Passed = v.Passed && b.Passed
		v.Outcomes = append(v.Outcomes, b.Outcomes...)
	}
	return v
}
