// internal/actor/actor_test.go
package actor

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/fakedemoqa"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/pages"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

func fastCandidates(field string, timeout time.Duration) []config.LocatorCandidate {
	spec := locator.DefaultCatalog().MustGet(field)
	out := make([]config.LocatorCandidate, 0, len(spec.Candidates))
	for _, c := range spec.Candidates {
		out = append(out, config.LocatorCandidate{Selector: c.Selector, Timeout: timeout})
	}
	return out
}

type harness struct {
	srv   *fakedemoqa.Server
	env   Env
	store *fixture.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := fakedemoqa.New()
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()
	catalog := locator.NewCatalog(map[string][]config.LocatorCandidate{
		locator.LoginError:       fastCandidates(locator.LoginError, 150*time.Millisecond),
		locator.CaptchaFrame:     fastCandidates(locator.CaptchaFrame, 100*time.Millisecond),
		locator.LogoutButton:     fastCandidates(locator.LogoutButton, 500*time.Millisecond),
		locator.FormEmailInvalid: fastCandidates(locator.FormEmailInvalid, 200*time.Millisecond),
	})
	store, err := fixture.NewStore(filepath.Join(t.TempDir(), "data.json"), logger)
	require.NoError(t, err)

	return &harness{
		srv:   srv,
		store: store,
		env: Env{
			Pages: pages.Deps{
				BaseURL:  srv.URL,
				Catalog:  catalog,
				Strategy: locator.NewStrategy(logger, time.Second),
				Poll:     cfg.Poll(),
				Logger:   logger,
			},
			Fixture:     store,
			PicturePath: filepath.Join(t.TempDir(), "fixtures", "test-image.png"),
			Rand:        func() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) },
			Logger:      logger,
		},
	}
}

// surface builds a ready surface of kind without a session Context around it.
func (h *harness) surface(t *testing.T, kind session.Kind) session.Surface {
	t.Helper()
	api, err := apiclient.New(apiclient.Options{BaseURL: h.srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(api.Close)

	s := session.Surface{Kind: kind, SessionID: "test-" + string(kind), API: api}
	if kind == session.KindInteractive {
		page := h.srv.NewPage()
		t.Cleanup(page.Close)
		s.Page = page
	}
	return s
}

func (h *harness) execute(t *testing.T, task Task) schemas.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return Execute(ctx, task, h.surface(t, task.Kind()), Options{Screenshots: true, Logger: zaptest.NewLogger(t)})
}

// -- Recovery boundary --

type brokenNameTask struct{}

func (brokenNameTask) Name() string       { panic("name unavailable") }
func (brokenNameTask) Kind() session.Kind { return session.KindAPI }
func (brokenNameTask) Run(context.Context, session.Surface) (any, error) {
	return nil, nil
}

func TestExecute(t *testing.T) {
	h := newHarness(t)

	t.Run("success carries the value", func(t *testing.T) {
		out := h.execute(t, TaskFunc{TaskName: "ok", TaskKind: session.KindAPI, Fn: func(context.Context, session.Surface) (any, error) {
			return 42, nil
		}})
		assert.Equal(t, schemas.StatusSuccess, out.Status)
		assert.Equal(t, 42, out.Value)
		assert.Equal(t, "ok", out.Actor)
		assert.Equal(t, "test-api", out.SessionID)
		assert.True(t, out.Succeeded())
	})

	t.Run("already exists is its own status", func(t *testing.T) {
		out := h.execute(t, TaskFunc{TaskName: "dup", TaskKind: session.KindAPI, Fn: func(context.Context, session.Surface) (any, error) {
			return AlreadyExists{Value: "alice", Reason: "User exists!"}, nil
		}})
		assert.Equal(t, schemas.StatusAlreadyExists, out.Status)
		assert.Equal(t, "alice", out.Value)
		assert.Equal(t, "User exists!", out.Reason)
	})

	t.Run("typed errors map to codes", func(t *testing.T) {
		cases := map[schemas.ErrorCode]error{
			schemas.ErrCodeElementNotFound:  &schemas.ElementNotFoundError{Field: "login.error", Tried: []string{"#name"}},
			schemas.ErrCodeTimeoutError:     &schemas.TimeoutError{What: "modal"},
			schemas.ErrCodeAssertionFailed:  &schemas.AssertionError{Expected: "a", Actual: "b"},
			schemas.ErrCodeExecutionFailure: errors.New("boom"),
		}
		for code, err := range cases {
			out := h.execute(t, TaskFunc{TaskName: string(code), TaskKind: session.KindAPI, Fn: func(context.Context, session.Surface) (any, error) {
				return nil, err
			}})
			assert.Equal(t, schemas.StatusFailure, out.Status, code)
			assert.Equal(t, code, out.Code)
			assert.Equal(t, err.Error(), out.Reason)
		}
	})

	t.Run("panic becomes a failure with a stack", func(t *testing.T) {
		out := h.execute(t, TaskFunc{TaskName: "panicky", TaskKind: session.KindInteractive, Fn: func(ctx context.Context, s session.Surface) (any, error) {
			require.NoError(t, s.Page.Navigate(ctx, h.srv.URL+"/login"))
			panic("kaboom")
		}})
		assert.Equal(t, schemas.StatusFailure, out.Status)
		assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Code)
		assert.Contains(t, out.Reason, "kaboom")
		assert.NotEmpty(t, out.Diagnostics.Stack)
		assert.Equal(t, h.srv.URL+"/login", out.Diagnostics.LastURL)
	})

	t.Run("panicking name is recovered", func(t *testing.T) {
		var out schemas.Outcome
		require.NotPanics(t, func() {
			out = Execute(context.Background(), brokenNameTask{}, session.Surface{SessionID: "s-1"}, Options{Logger: zaptest.NewLogger(t)})
		})
		assert.Equal(t, "unknown", out.Actor)
		assert.Equal(t, "s-1", out.SessionID)
		assert.Equal(t, schemas.StatusFailure, out.Status)
		assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Code)
		assert.Contains(t, out.Reason, "name unavailable")
	})

	t.Run("nil task fails", func(t *testing.T) {
		out := Execute(context.Background(), nil, session.Surface{}, Options{})
		assert.Equal(t, schemas.StatusFailure, out.Status)
		assert.Equal(t, "unknown", out.Actor)
	})

	t.Run("failure captures page diagnostics", func(t *testing.T) {
		out := h.execute(t, TaskFunc{TaskName: "broken", TaskKind: session.KindInteractive, Fn: func(ctx context.Context, s session.Surface) (any, error) {
			if err := s.Page.Navigate(ctx, h.srv.URL+"/register"); err != nil {
				return nil, err
			}
			return nil, errors.New("nothing worked")
		}})
		d := out.Diagnostics
		assert.Equal(t, h.srv.URL+"/register", d.LastURL)
		assert.Equal(t, "DEMOQA", d.PageTitle)
		assert.Equal(t, "DEMOQA /register", d.BodyExcerpt)
		assert.Equal(t, "memory://broken.png", d.Screenshot)
		assert.Positive(t, d.Duration)
	})
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", excerpt("  a\n\tb   c ", 10))
	assert.Equal(t, "abc...", excerpt("abcdef", 3))
}

// -- Journeys --

func TestRegisterViaAPI(t *testing.T) {
	h := newHarness(t)

	out := h.execute(t, RegisterViaAPI{Env: h.env, Fresh: true})
	require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
	reg := out.Value.(Registration)
	assert.Equal(t, "User Register Successfully.", reg.Result.Message)
	assert.Equal(t, 201, out.Diagnostics.LastHTTPStatus)

	creds, ok, err := h.store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, reg.Credentials, creds)
	assert.Equal(t, reg.Result.UserName, creds.UserName)
	password, ok := h.srv.PasswordOf(creds.UserName)
	require.True(t, ok)
	assert.Equal(t, schemas.Credentials{UserName: creds.UserName, Password: password}, creds,
		"the fixture holds the exact pair the server registered")

	// Reusing the persisted fixture hits the duplicate path.
	again := h.execute(t, RegisterViaAPI{Env: h.env})
	assert.Equal(t, schemas.StatusAlreadyExists, again.Status)
	assert.Equal(t, creds, again.Value.(Registration).Credentials)
	after, _, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, creds, after)
}

func TestRegisterViaAPI_UpstreamFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.srv.FailRegistration(503)

	out := h.execute(t, RegisterViaAPI{Env: h.env, Fresh: true})
	assert.Equal(t, schemas.StatusFailure, out.Status)
	assert.Equal(t, schemas.ErrCodeUpstreamAPI, out.Code)

	_, ok, err := h.store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterInvalidPassword(t *testing.T) {
	t.Run("form branch", func(t *testing.T) {
		h := newHarness(t)
		out := h.execute(t, RegisterInvalidPassword{Env: h.env})
		require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
		res := out.Value.(RejectionResult)
		assert.Equal(t, BranchUI, res.Branch)
		assert.Regexp(t, PasswordPolicyPattern, res.Message)
	})

	t.Run("captcha switches to the api branch", func(t *testing.T) {
		h := newHarness(t)
		h.srv.EnableCaptcha(true)
		out := h.execute(t, RegisterInvalidPassword{Env: h.env})
		require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
		res := out.Value.(RejectionResult)
		assert.Equal(t, BranchAPI, res.Branch)
		assert.Equal(t, 400, res.Status)
	})

	t.Run("api surface alone is a lifecycle failure", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		out := Execute(ctx, RegisterInvalidPassword{Env: h.env}, h.surface(t, session.KindAPI), Options{})
		assert.Equal(t, schemas.ErrCodeLifecycle, out.Code)
	})
}

func TestLoginWithFixture(t *testing.T) {
	t.Run("registered fixture logs in", func(t *testing.T) {
		h := newHarness(t)
		reg := h.execute(t, RegisterViaAPI{Env: h.env, Fresh: true})
		require.Equal(t, schemas.StatusSuccess, reg.Status, reg.Reason)
		creds, _, err := h.store.Load()
		require.NoError(t, err)

		out := h.execute(t, LoginWithFixture{Env: h.env})
		require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
		assert.Equal(t, ProfileView{UserName: creds.UserName, LoggedIn: true}, out.Value)
	})

	t.Run("missing fixture fails", func(t *testing.T) {
		h := newHarness(t)
		out := h.execute(t, LoginWithFixture{Env: h.env})
		assert.Equal(t, schemas.StatusFailure, out.Status)
		assert.Contains(t, out.Reason, "no fixture credentials")
	})
}

func TestLoginInvalid(t *testing.T) {
	h := newHarness(t)
	out := h.execute(t, LoginInvalid{Env: h.env})
	require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
	assert.Regexp(t, pages.InvalidLoginPattern, out.Value)
}

func TestSubmitPracticeForm(t *testing.T) {
	h := newHarness(t)
	out := h.execute(t, SubmitPracticeForm{Env: h.env})
	require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
	conf := out.Value.(FormConfirmation)
	assert.Equal(t, fakedemoqa.ConfirmationTitle, conf.Title)
	assert.Regexp(t, pages.ConfirmationPattern, conf.Text)
	assert.FileExists(t, h.env.PicturePath)
}

func TestInvalidEmailForm(t *testing.T) {
	h := newHarness(t)
	out := h.execute(t, InvalidEmailForm{Env: h.env})
	require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
	assert.Equal(t, BranchUI, out.Value.(RejectionResult).Branch)
}

func TestShuffleGrid(t *testing.T) {
	h := newHarness(t)
	out := h.execute(t, ShuffleGrid{Env: h.env})
	require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
	grid := out.Value.(GridShuffle)
	assert.NotEqual(t, grid.Before, grid.After)
	assert.ElementsMatch(t, grid.Before, grid.After)
}

func TestAPIJourneys(t *testing.T) {
	h := newHarness(t)

	t.Run("list books", func(t *testing.T) {
		out := h.execute(t, ListBooks{Env: h.env})
		require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
		assert.NotEmpty(t, out.Value)
	})

	t.Run("issue token", func(t *testing.T) {
		out := h.execute(t, IssueToken{Env: h.env})
		require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
		grant := out.Value.(TokenGrant)
		assert.NotEmpty(t, grant.UserID)
		assert.Greater(t, len(grant.Token), 10)
		assert.True(t, grant.ExpiresAt.After(time.Now()))
	})

	t.Run("fetch account", func(t *testing.T) {
		creds := schemas.Credentials{UserName: "reader", Password: "Sup3r$ecret"}
		out := h.execute(t, FetchAccount{Env: h.env, Creds: creds})
		require.Equal(t, schemas.StatusSuccess, out.Status, out.Reason)
		assert.Equal(t, "reader", out.Value.(schemas.Account).UserName)
	})

	t.Run("bad credentials cannot get a token", func(t *testing.T) {
		h.srv.Seed("taken", "Sup3r$ecret")
		out := h.execute(t, IssueToken{Env: h.env, Creds: schemas.Credentials{UserName: "taken", Password: "Wr0ng$pass"}})
		assert.Equal(t, schemas.StatusFailure, out.Status)
		assert.Equal(t, schemas.ErrCodeUpstreamAPI, out.Code)
	})
}

func TestJourneys(t *testing.T) {
	tasks := Journeys(Env{})
	assert.Len(t, tasks, 10)
	for name, task := range tasks {
		assert.Equal(t, name, task.Name())
	}
	assert.Equal(t, session.KindAPI, tasks["list-books"].Kind())
	assert.Equal(t, session.KindInteractive, tasks["shuffle-grid"].Kind())
}
