// internal/steps/steps.go

// Package steps binds the Gherkin scenarios of the suite to actor journeys. Bindings
// declare journeys on the scenario World; the first assertion runs them through the
// orchestrator and later assertions read the recorded outcomes.
package steps

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/orchestrator"
	"github.com/xkilldash9x/demoqa-e2e/internal/pages"
)

// Runtime is shared by every scenario of a suite run.
type Runtime struct {
	env    actor.Env
	orch   *orchestrator.Orchestrator
	logger *zap.Logger

	mu        sync.Mutex
	verdicts  []schemas.Verdict
	onVerdict func(schemas.Verdict)
}

// NewRuntime creates a Runtime running journeys bound to env through orch.
func NewRuntime(env actor.Env, orch *orchestrator.Orchestrator, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{env: env, orch: orch, logger: logger.Named("steps")}
}

// OnVerdict registers fn to receive each scenario verdict as soon as it is final.
// It must be set before the suite starts.
func (r *Runtime) OnVerdict(fn func(schemas.Verdict)) {
	r.onVerdict = fn
}

// Verdicts returns the verdict of every finished scenario.
func (r *Runtime) Verdicts() []schemas.Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.Verdict(nil), r.verdicts...)
}

// InitializeScenario registers hooks and step bindings on sc.
func (r *Runtime) InitializeScenario(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		tags := make([]string, 0, len(s.Tags))
		for _, t := range s.Tags {
			tags = append(tags, t.Name)
		}
		w := newWorld(s.Name, tags)
		r.logger.Debug("Scenario world created.", zap.String("scenario", s.Name), zap.String("kind", string(w.Kind)))
		return withWorld(ctx, w), nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, stepErr error) (context.Context, error) {
		w, err := WorldFrom(ctx)
		if err != nil {
			return ctx, nil
		}
		// Journeys declared without a following assertion still run.
		w.run(ctx, r.orch)
		v := w.Verdict()
		if stepErr != nil {
			v.Passed = false
		}
		r.mu.Lock()
		r.verdicts = append(r.verdicts, v)
		r.mu.Unlock()
		if r.onVerdict != nil {
			r.onVerdict(v)
		}
		return ctx, nil
	})

	// -- API --
	sc.Step(`^I have valid user credentials$`, r.haveCredentials)
	sc.Step(`^I request all books from the API$`, r.declareFor(selfLabel, func(e actor.Env, _ *World) actor.Task { return actor.ListBooks{Env: e} }))
	sc.Step(`^I request a token from the API$`, r.declareFor(selfLabel, func(e actor.Env, w *World) actor.Task {
		return actor.IssueToken{Env: e, Creds: w.Credentials}
	}))
	sc.Step(`^I have a valid user token$`, r.haveCredentials)
	sc.Step(`^I request my user account details$`, r.declareFor(selfLabel, func(e actor.Env, w *World) actor.Task {
		return actor.FetchAccount{Env: e, Creds: w.Credentials}
	}))
	sc.Step(`^the response should have status (\d+)$`, r.responseStatus)
	sc.Step(`^the response should contain a list of books$`, r.responseBooks)
	sc.Step(`^the response should contain a token$`, r.responseToken)
	sc.Step(`^the response should contain my user information$`, r.responseAccount)

	// -- Login --
	sc.Step(`^a registered user is stored in the fixture$`, r.storedUser)
	sc.Step(`^I navigate to the (login|registration) page$`, r.navigate)
	sc.Step(`^I fill in the login form with valid stored credentials$`, r.declareFor(selfLabel, func(e actor.Env, _ *World) actor.Task {
		return actor.LoginWithFixture{Env: e}
	}))
	sc.Step(`^I fill in the login form with invalid credentials$`, r.declareFor(selfLabel, func(e actor.Env, _ *World) actor.Task {
		return actor.LoginInvalid{Env: e}
	}))
	sc.Step(`^I should see my profile page$`, r.seeProfile)
	sc.Step(`^I should see a login error message$`, r.seeLoginError)

	// -- Registration --
	sc.Step(`^I fill in the registration form with valid data$`, r.declareFor(selfLabel, func(e actor.Env, _ *World) actor.Task {
		return actor.RegisterViaAPI{Env: e, Fresh: true}
	}))
	sc.Step(`^I fill in the registration form with an invalid password$`, r.declareFor(selfLabel, func(e actor.Env, _ *World) actor.Task {
		return actor.RegisterInvalidPassword{Env: e}
	}))
	sc.Step(`^I should see a success message$`, r.seeRegistered)
	sc.Step(`^I should see a validation error message$`, r.seeValidationError)
	sc.Step(`^the stored credentials should belong to the registered user$`, r.storedCredentials)

	// -- Parallel users --
	sc.Step(`^user (\d+) fills and submits the automation practice form with valid data$`, r.declareUser(func(e actor.Env) actor.Task {
		return actor.SubmitPracticeForm{Env: e}
	}))
	sc.Step(`^user (\d+) shuffles the sortable grid items$`, r.declareUser(func(e actor.Env) actor.Task {
		return actor.ShuffleGrid{Env: e}
	}))
	sc.Step(`^user (\d+) fills the automation practice form with an invalid email$`, r.declareUser(func(e actor.Env) actor.Task {
		return actor.InvalidEmailForm{Env: e}
	}))
	sc.Step(`^user (\d+) should see the form submission confirmation$`, r.userConfirmation)
	sc.Step(`^user (\d+) should see the grid items reordered$`, r.userGridReordered)
	sc.Step(`^user (\d+) should see an email validation error$`, r.userEmailError)

	// -- Scenario --
	sc.Step(`^the scenario should pass$`, r.scenarioPasses)
}

// -- Declaring --

func (r *Runtime) declareFor(label string, build func(actor.Env, *World) actor.Task) func(context.Context) error {
	return func(ctx context.Context) error {
		w, err := WorldFrom(ctx)
		if err != nil {
			return err
		}
		w.declare(label, build(r.env, w))
		return nil
	}
}

func (r *Runtime) declareUser(build func(actor.Env) actor.Task) func(context.Context, int) error {
	return func(ctx context.Context, user int) error {
		w, err := WorldFrom(ctx)
		if err != nil {
			return err
		}
		w.declare(userLabel(user), build(r.env))
		return nil
	}
}

func userLabel(n int) string { return fmt.Sprintf("user %d", n) }

func (r *Runtime) haveCredentials(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.Credentials.Complete() {
		return nil
	}
	creds, err := fixture.NewCredentials()
	if err != nil {
		return err
	}
	w.Credentials = creds
	return nil
}

// storedUser makes sure the fixture names a registered account. A duplicate is fine.
func (r *Runtime) storedUser(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	spec := w.declare(selfLabel, actor.RegisterViaAPI{Env: r.env})
	spec.AcceptAlreadyExists = true
	return nil
}

func (r *Runtime) navigate(ctx context.Context, page string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	w.Page = page
	return nil
}

// results runs pending journeys and returns the world.
func (r *Runtime) results(ctx context.Context) (*World, error) {
	w, err := WorldFrom(ctx)
	if err != nil {
		return nil, err
	}
	w.run(ctx, r.orch)
	return w, nil
}

// -- API assertions --

func (r *Runtime) responseStatus(ctx context.Context, status int) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	all := w.outcomes()
	if len(all) == 0 {
		return fmt.Errorf("no request was made")
	}
	last := all[len(all)-1]
	if got := last.Diagnostics.LastHTTPStatus; got != status {
		return fmt.Errorf("expected status %d, got %d (%s)", status, got, last.Reason)
	}
	return nil
}

func (r *Runtime) responseBooks(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.ListBooks{}.Name())
	if err != nil {
		return err
	}
	books, ok := out.Value.([]schemas.Book)
	if !ok || len(books) == 0 {
		return fmt.Errorf("expected a list of books, got %T", out.Value)
	}
	return nil
}

func (r *Runtime) responseToken(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.IssueToken{}.Name())
	if err != nil {
		return err
	}
	grant, ok := out.Value.(actor.TokenGrant)
	if !ok || len(grant.Token) <= 10 {
		return fmt.Errorf("expected a token longer than 10 characters")
	}
	return nil
}

func (r *Runtime) responseAccount(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.FetchAccount{}.Name())
	if err != nil {
		return err
	}
	acct, ok := out.Value.(schemas.Account)
	if !ok || acct.UserName == "" {
		return fmt.Errorf("expected account details, got %+v", out.Value)
	}
	if w.Credentials.Complete() && acct.UserName != w.Credentials.UserName {
		return fmt.Errorf("expected account %q, got %q", w.Credentials.UserName, acct.UserName)
	}
	return nil
}

// -- UI assertions --

func (r *Runtime) seeProfile(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.LoginWithFixture{}.Name())
	if err != nil {
		return err
	}
	view, ok := out.Value.(actor.ProfileView)
	if !ok || !view.LoggedIn {
		return fmt.Errorf("profile page not shown")
	}
	return nil
}

func (r *Runtime) seeLoginError(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.LoginInvalid{}.Name())
	if err != nil {
		return err
	}
	msg, _ := out.Value.(string)
	if !pages.InvalidLoginPattern.MatchString(msg) {
		return fmt.Errorf("login error %q does not match %s", msg, pages.InvalidLoginPattern)
	}
	return nil
}

func (r *Runtime) seeRegistered(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.RegisterViaAPI{}.Name())
	if err != nil {
		return err
	}
	if out.Status != schemas.StatusSuccess {
		return nil
	}
	reg, _ := out.Value.(actor.Registration)
	if reg.Result.Status != http.StatusCreated {
		return fmt.Errorf("expected status 201, got %d", reg.Result.Status)
	}
	return nil
}

func (r *Runtime) seeValidationError(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(selfLabel, actor.RegisterInvalidPassword{}.Name())
	if err != nil {
		return err
	}
	res, ok := out.Value.(actor.RejectionResult)
	if !ok || (res.Message == "" && res.Status == 0) {
		return fmt.Errorf("no validation error observed")
	}
	return nil
}

func (r *Runtime) storedCredentials(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.outcome(selfLabel, actor.RegisterViaAPI{}.Name())
	if err != nil {
		return err
	}
	reg, ok := out.Value.(actor.Registration)
	if !ok || !reg.Credentials.Complete() {
		return fmt.Errorf("registration recorded no credentials: %s", out.Reason)
	}
	if r.env.Fixture == nil {
		return fmt.Errorf("no fixture store configured")
	}
	creds, ok, err := r.env.Fixture.Load()
	if err != nil {
		return err
	}
	if !ok || creds != reg.Credentials {
		return fmt.Errorf("fixture holds %q, registered %q with a different password or name", creds.UserName, reg.Credentials.UserName)
	}
	return nil
}

// -- Parallel user assertions --

func (r *Runtime) userConfirmation(ctx context.Context, user int) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	out, err := w.accepted(userLabel(user), actor.SubmitPracticeForm{}.Name())
	if err != nil {
		return err
	}
	if conf, ok := out.Value.(actor.FormConfirmation); !ok || !pages.ConfirmationPattern.MatchString(conf.Text) {
		return fmt.Errorf("user %d saw no confirmation", user)
	}
	return nil
}

func (r *Runtime) userGridReordered(ctx context.Context, user int) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	_, err = w.accepted(userLabel(user), actor.ShuffleGrid{}.Name())
	return err
}

func (r *Runtime) userEmailError(ctx context.Context, user int) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	_, err = w.accepted(userLabel(user), actor.InvalidEmailForm{}.Name())
	return err
}

func (r *Runtime) scenarioPasses(ctx context.Context) error {
	w, err := r.results(ctx)
	if err != nil {
		return err
	}
	v := w.Verdict()
	if !v.Passed {
		failures := v.Failures()
		reasons := make([]string, 0, len(failures))
		for _, f := range failures {
			reasons = append(reasons, f.Actor+": "+f.Reason)
		}
		return fmt.Errorf("scenario failed: %v", reasons)
	}
	return nil
}
