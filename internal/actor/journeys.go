// internal/actor/journeys.go
package actor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/pages"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// PasswordPolicyPattern matches the target's password policy message.
var PasswordPolicyPattern = regexp.MustCompile(`(?i)passwords? must have`)

// Credentials used by the invalid login and invalid registration journeys.
var (
	InvalidLogin = schemas.Credentials{UserName: "invalidUser", Password: "invalidPass"}
	weakPassword = "password1!"
)

// Branch names the surface a two-branch journey ended up using.
const (
	BranchUI  = "ui"
	BranchAPI = "api"
)

// Env is what journeys share within one run.
type Env struct {
	Pages   pages.Deps
	Fixture *fixture.Store
	// PicturePath is uploaded by the practice form journey and generated if missing.
	PicturePath string
	// Rand seeds the grid shuffle. Nil uses a time based source.
	Rand   func() *rand.Rand
	Logger *zap.Logger
}

func (e Env) logger(name string) *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger.Named(name)
}

func (e Env) rng() *rand.Rand {
	if e.Rand != nil {
		return e.Rand()
	}
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>17))
}

// requirePage returns the interactive surface or a lifecycle error naming op.
func requirePage(s session.Surface, op string) (session.Page, error) {
	if s.Page == nil {
		return nil, &schemas.LifecycleError{SessionID: s.SessionID, State: string(s.Kind), Op: op}
	}
	return s.Page, nil
}

func requireAPI(s session.Surface, op string) (session.APIClient, error) {
	if s.API == nil {
		return nil, &schemas.LifecycleError{SessionID: s.SessionID, State: string(s.Kind), Op: op}
	}
	return s.API, nil
}

// -- Result values --

// ProfileView is what LoginWithFixture observed after logging in.
type ProfileView struct {
	UserName string
	LoggedIn bool
}

// RejectionResult is the outcome of a journey that expects the target to refuse input.
type RejectionResult struct {
	Branch  string
	Message string
	Status  int
}

// FormConfirmation is the confirmation modal of the practice form.
type FormConfirmation struct {
	Title string
	Text  string
}

// GridShuffle is the sortable grid order before and after shuffling.
type GridShuffle struct {
	Before []string
	After  []string
}

// TokenGrant is the result of IssueToken.
type TokenGrant struct {
	UserID    string
	UserName  string
	Token     string
	ExpiresAt time.Time
}

// -- Registration --

// Registration is the value of RegisterViaAPI. Credentials are the pair that was sent
// and persisted; they stay out of serialized reports.
type Registration struct {
	Credentials schemas.Credentials        `json:"-"`
	Result      schemas.RegistrationResult `json:"result"`
}

// RegisterViaAPI registers an account over HTTP and persists it as the fixture. With
// Fresh set it always generates new credentials and replaces the fixture on success.
// Otherwise it reuses the persisted fixture when one exists, and a duplicate is
// reported as AlreadyExists. The value is a Registration.
type RegisterViaAPI struct {
	Env
	Fresh bool
}

func (RegisterViaAPI) Name() string       { return "register-via-api" }
func (RegisterViaAPI) Kind() session.Kind { return session.KindAPI }

func (t RegisterViaAPI) Run(ctx context.Context, s session.Surface) (any, error) {
	api, err := requireAPI(s, "register via api")
	if err != nil {
		return nil, err
	}
	if t.Fixture == nil {
		return nil, fmt.Errorf("register via api: no fixture store configured")
	}

	var res schemas.RegistrationResult
	stored, err := t.Fixture.Update(func(cur schemas.Credentials, ok bool) (schemas.Credentials, error) {
		creds := cur
		if t.Fresh || !ok {
			fresh, err := fixture.NewCredentials()
			if err != nil {
				return schemas.Credentials{}, err
			}
			creds = fresh
		}
		res, err = api.RegisterUser(ctx, creds)
		if err != nil {
			return schemas.Credentials{}, err
		}
		switch res.Kind {
		case schemas.RegistrationCreated, schemas.RegistrationAlreadyExists:
			return creds, nil
		default:
			return schemas.Credentials{}, &schemas.AssertionError{
				Expected: "status 201",
				Actual:   fmt.Sprintf("status %d: %s", res.Status, res.Message),
			}
		}
	})
	if err != nil {
		return nil, err
	}

	t.logger("register_via_api").Info("Registration completed.",
		zap.String("user", res.UserName), zap.String("kind", string(res.Kind)))
	reg := Registration{Credentials: stored, Result: res}
	if res.Kind == schemas.RegistrationAlreadyExists {
		return AlreadyExists{Value: reg, Reason: res.Message}, nil
	}
	return reg, nil
}

// RegisterInvalidPassword submits the registration form with a password that breaks
// the policy and expects the policy message. When the form is guarded by a CAPTCHA the
// same check runs against the HTTP API instead.
type RegisterInvalidPassword struct {
	Env
}

func (RegisterInvalidPassword) Name() string       { return "register-invalid-password" }
func (RegisterInvalidPassword) Kind() session.Kind { return session.KindInteractive }

func (t RegisterInvalidPassword) Run(ctx context.Context, s session.Surface) (any, error) {
	page, err := requirePage(s, "register invalid password")
	if err != nil {
		return nil, err
	}
	logger := t.logger("register_invalid_password")

	name, err := fixture.UserName("invalid")
	if err != nil {
		return nil, err
	}
	creds := schemas.Credentials{UserName: name, Password: weakPassword}

	rp := pages.NewRegistrationPage(page, t.Pages)
	if err := rp.Goto(ctx); err != nil {
		return nil, err
	}
	state, err := rp.ProbeCaptcha(ctx)
	if err != nil {
		return nil, err
	}
	if state == pages.CaptchaPresent {
		logger.Info("Switching to the api branch.", zap.Stringer("captcha", state))
		return rejectViaAPI(ctx, s, creds)
	}

	if err := rp.Fill(ctx, "Invalid", "Password", creds); err != nil {
		return nil, err
	}
	if err := rp.Submit(ctx); err != nil {
		return nil, err
	}
	msg, err := rp.ErrorMessage(ctx)
	if err != nil {
		return nil, err
	}
	if pages.IsCaptchaRejection(msg) {
		logger.Info("Form rejected by captcha, switching to the api branch.")
		return rejectViaAPI(ctx, s, creds)
	}
	if !PasswordPolicyPattern.MatchString(msg) {
		return RejectionResult{Branch: BranchUI, Message: msg}, &schemas.AssertionError{Expected: PasswordPolicyPattern.String(), Actual: msg}
	}
	return RejectionResult{Branch: BranchUI, Message: msg}, nil
}

// rejectViaAPI registers creds over HTTP and expects a 400 or 406 refusal.
func rejectViaAPI(ctx context.Context, s session.Surface, creds schemas.Credentials) (any, error) {
	api, err := requireAPI(s, "register via api branch")
	if err != nil {
		return nil, err
	}
	res, err := api.RegisterUser(ctx, creds)
	if err != nil {
		return nil, err
	}
	out := RejectionResult{Branch: BranchAPI, Message: res.Message, Status: res.Status}
	if res.Status != http.StatusBadRequest && res.Status != http.StatusNotAcceptable {
		return out, &schemas.AssertionError{Expected: "status 400 or 406", Actual: fmt.Sprintf("status %d", res.Status)}
	}
	if res.Kind == schemas.RegistrationRejected && !PasswordPolicyPattern.MatchString(res.Message) {
		return out, &schemas.AssertionError{Expected: PasswordPolicyPattern.String(), Actual: res.Message}
	}
	return out, nil
}

// -- Login --

// LoginWithFixture logs in through the UI with the persisted fixture credentials and
// checks the profile page.
type LoginWithFixture struct {
	Env
}

func (LoginWithFixture) Name() string       { return "login-with-fixture" }
func (LoginWithFixture) Kind() session.Kind { return session.KindInteractive }

func (t LoginWithFixture) Run(ctx context.Context, s session.Surface) (any, error) {
	page, err := requirePage(s, "login with fixture")
	if err != nil {
		return nil, err
	}
	if t.Fixture == nil {
		return nil, fmt.Errorf("login with fixture: no fixture store configured")
	}
	creds, ok, err := t.Fixture.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w at %s", errNoFixture, t.Fixture.Path())
	}

	lp := pages.NewLoginPage(page, t.Pages)
	if err := lp.Goto(ctx); err != nil {
		return nil, err
	}
	if err := lp.Login(ctx, creds); err != nil {
		return nil, err
	}
	name, err := lp.ProfileUserName(ctx)
	if err != nil {
		return nil, err
	}
	loggedIn, err := lp.IsLoggedIn(ctx)
	if err != nil {
		return nil, err
	}
	view := ProfileView{UserName: name, LoggedIn: loggedIn}
	if name != creds.UserName {
		return view, &schemas.AssertionError{Expected: creds.UserName, Actual: name}
	}
	if !loggedIn {
		return view, &schemas.AssertionError{Expected: "logout control visible", Actual: "not visible"}
	}
	return view, nil
}

// LoginInvalid logs in with unknown credentials and expects an error message.
type LoginInvalid struct {
	Env
	// Creds defaults to InvalidLogin.
	Creds schemas.Credentials
}

func (LoginInvalid) Name() string       { return "login-invalid" }
func (LoginInvalid) Kind() session.Kind { return session.KindInteractive }

func (t LoginInvalid) Run(ctx context.Context, s session.Surface) (any, error) {
	page, err := requirePage(s, "login invalid")
	if err != nil {
		return nil, err
	}
	creds := t.Creds
	if !creds.Complete() {
		creds = InvalidLogin
	}

	lp := pages.NewLoginPage(page, t.Pages)
	if err := lp.Goto(ctx); err != nil {
		return nil, err
	}
	if err := lp.Login(ctx, creds); err != nil {
		return nil, err
	}
	return lp.WaitForError(ctx, pages.InvalidLoginPattern)
}

// -- Practice form --

// SubmitPracticeForm fills every field of the practice form and waits for the
// confirmation modal.
type SubmitPracticeForm struct {
	Env
}

func (SubmitPracticeForm) Name() string       { return "submit-practice-form" }
func (SubmitPracticeForm) Kind() session.Kind { return session.KindInteractive }

func (t SubmitPracticeForm) Run(ctx context.Context, s session.Surface) (any, error) {
	page, err := requirePage(s, "submit practice form")
	if err != nil {
		return nil, err
	}
	picture := ""
	if t.PicturePath != "" {
		if picture, err = fixture.EnsurePicture(t.PicturePath); err != nil {
			return nil, err
		}
	}
	form, err := fixture.NewPracticeForm("", picture)
	if err != nil {
		return nil, err
	}

	fp := pages.NewPracticeFormPage(page, t.Pages)
	if err := fp.Goto(ctx); err != nil {
		return nil, err
	}
	if err := fp.Fill(ctx, form); err != nil {
		return nil, err
	}
	if err := fp.Submit(ctx); err != nil {
		return nil, err
	}
	text, err := fp.WaitConfirmation(ctx)
	if err != nil {
		return FormConfirmation{Text: text}, err
	}
	title, err := fp.ModalTitle(ctx)
	if err != nil {
		return FormConfirmation{Text: text}, err
	}
	return FormConfirmation{Title: title, Text: text}, nil
}

// InvalidEmailForm enters a malformed email and expects the form to flag it. When
// the page does not expose the validity state the check moves to the HTTP API, which
// must refuse a registration with a policy breaking password.
type InvalidEmailForm struct {
	Env
}

func (InvalidEmailForm) Name() string       { return "invalid-email-form" }
func (InvalidEmailForm) Kind() session.Kind { return session.KindInteractive }

func (t InvalidEmailForm) Run(ctx context.Context, s session.Surface) (any, error) {
	page, err := requirePage(s, "invalid email form")
	if err != nil {
		return nil, err
	}
	form, err := fixture.NewPracticeForm("invalid-email", "")
	if err != nil {
		return nil, err
	}

	fp := pages.NewPracticeFormPage(page, t.Pages)
	if err := fp.Goto(ctx); err != nil {
		return nil, err
	}
	if err := fp.FillIdentity(ctx, form); err != nil {
		return nil, err
	}
	flagged, err := fp.EmailInvalid(ctx)
	if err != nil {
		return nil, err
	}
	if !flagged {
		t.logger("invalid_email_form").Info("Email validity not exposed, switching to the api branch.")
		name, err := fixture.UserName("invalid")
		if err != nil {
			return nil, err
		}
		return rejectViaAPI(ctx, s, schemas.Credentials{UserName: name, Password: weakPassword})
	}

	if err := fp.Submit(ctx); err != nil {
		return nil, err
	}
	still, err := fp.EmailInvalid(ctx)
	if err != nil {
		return nil, err
	}
	out := RejectionResult{Branch: BranchUI, Message: form.Email}
	if !still {
		return out, &schemas.AssertionError{Expected: "email flagged invalid after submit", Actual: "accepted"}
	}
	return out, nil
}

// -- Sortable grid --

// ShuffleGrid reorders the sortable grid by dragging and checks that the order changed.
type ShuffleGrid struct {
	Env
}

func (ShuffleGrid) Name() string       { return "shuffle-grid" }
func (ShuffleGrid) Kind() session.Kind { return session.KindInteractive }

func (t ShuffleGrid) Run(ctx context.Context, s session.Surface) (any, error) {
	page, err := requirePage(s, "shuffle grid")
	if err != nil {
		return nil, err
	}
	sp := pages.NewSortablePage(page, t.Pages)
	if err := sp.Goto(ctx); err != nil {
		return nil, err
	}
	if err := sp.OpenGrid(ctx); err != nil {
		return nil, err
	}
	before, after, err := sp.Shuffle(ctx, t.rng())
	out := GridShuffle{Before: before, After: after}
	if err != nil {
		return out, err
	}
	if slices.Equal(before, after) {
		return out, &schemas.AssertionError{Expected: "order different from " + strings.Join(before, ","), Actual: strings.Join(after, ",")}
	}
	return out, nil
}

// -- BookStore and Account API --

// ListBooks fetches the book catalog and expects it to be non-empty.
type ListBooks struct {
	Env
}

func (ListBooks) Name() string       { return "list-books" }
func (ListBooks) Kind() session.Kind { return session.KindAPI }

func (t ListBooks) Run(ctx context.Context, s session.Surface) (any, error) {
	api, err := requireAPI(s, "list books")
	if err != nil {
		return nil, err
	}
	books, err := api.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return books, &schemas.AssertionError{Expected: "at least one book", Actual: "none"}
	}
	return books, nil
}

// IssueToken registers fresh credentials and requests a token for them.
type IssueToken struct {
	Env
	// Creds are used instead of generated ones when complete.
	Creds schemas.Credentials
}

func (IssueToken) Name() string       { return "issue-token" }
func (IssueToken) Kind() session.Kind { return session.KindAPI }

func (t IssueToken) Run(ctx context.Context, s session.Surface) (any, error) {
	api, err := requireAPI(s, "issue token")
	if err != nil {
		return nil, err
	}
	grant, err := issueToken(ctx, api, t.Creds)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func issueToken(ctx context.Context, api session.APIClient, creds schemas.Credentials) (TokenGrant, error) {
	if !creds.Complete() {
		fresh, err := fixture.NewCredentials()
		if err != nil {
			return TokenGrant{}, err
		}
		creds = fresh
	}
	reg, err := api.RegisterUser(ctx, creds)
	if err != nil {
		return TokenGrant{}, err
	}
	if reg.Kind == schemas.RegistrationRejected {
		return TokenGrant{}, &schemas.AssertionError{Expected: "registration accepted", Actual: reg.Message}
	}

	tok, err := api.GenerateToken(ctx, creds)
	if err != nil {
		return TokenGrant{}, err
	}
	info, err := apiclient.InspectToken(tok.Token)
	if err != nil {
		return TokenGrant{}, err
	}
	if info.UserName != "" && info.UserName != creds.UserName {
		return TokenGrant{}, &schemas.AssertionError{Expected: "token for " + creds.UserName, Actual: "token for " + info.UserName}
	}
	if info.Expired(time.Now()) {
		return TokenGrant{}, &schemas.AssertionError{Expected: "unexpired token", Actual: "expired at " + info.ExpiresAt.Format(time.RFC3339)}
	}
	return TokenGrant{UserID: reg.UserID, UserName: creds.UserName, Token: tok.Token, ExpiresAt: info.ExpiresAt}, nil
}

// FetchAccount issues a token and reads the account back with it. The account is
// addressed by the user id remembered from registration, or by user name when the
// registration did not return one.
type FetchAccount struct {
	Env
	Creds schemas.Credentials
}

func (FetchAccount) Name() string       { return "fetch-account" }
func (FetchAccount) Kind() session.Kind { return session.KindAPI }

func (t FetchAccount) Run(ctx context.Context, s session.Surface) (any, error) {
	api, err := requireAPI(s, "fetch account")
	if err != nil {
		return nil, err
	}
	grant, err := issueToken(ctx, api, t.Creds)
	if err != nil {
		return nil, err
	}
	id := grant.UserID
	if id == "" {
		id = grant.UserName
	}
	acct, err := api.GetUser(ctx, id, grant.Token)
	if err != nil {
		return nil, err
	}
	if acct.UserName != grant.UserName {
		return acct, &schemas.AssertionError{Expected: grant.UserName, Actual: acct.UserName}
	}
	return acct, nil
}

// Journeys returns every journey bound to env, keyed by task name.
func Journeys(env Env) map[string]Task {
	tasks := []Task{
		RegisterViaAPI{Env: env},
		RegisterInvalidPassword{Env: env},
		LoginWithFixture{Env: env},
		LoginInvalid{Env: env},
		SubmitPracticeForm{Env: env},
		InvalidEmailForm{Env: env},
		ShuffleGrid{Env: env},
		ListBooks{Env: env},
		IssueToken{Env: env},
		FetchAccount{Env: env},
	}
	out := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		out[t.Name()] = t
	}
	return out
}
