// internal/pages/login.go
package pages

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/poll"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// InvalidLoginPattern matches the messages the target shows for rejected logins.
var InvalidLoginPattern = regexp.MustCompile(`(?i)invalid|not match`)

// LoginPage is the /login form and the profile page it leads to.
type LoginPage struct {
	base
}

func NewLoginPage(page session.Page, deps Deps) *LoginPage {
	return &LoginPage{base: newBase(page, deps, "login_page")}
}

func (p *LoginPage) Goto(ctx context.Context) error {
	return p.open(ctx, "/login")
}

// Login submits the form. It does not wait for the result.
func (p *LoginPage) Login(ctx context.Context, creds schemas.Credentials) error {
	if err := p.fill(ctx, locator.LoginUserName, creds.UserName); err != nil {
		return err
	}
	if err := p.fill(ctx, locator.LoginPassword, creds.Password); err != nil {
		return err
	}
	return p.click(ctx, locator.LoginButton)
}

// ProfileUserName waits for the profile page and returns the user name it shows. The
// name is polled with the profile poll profile until it renders.
func (p *LoginPage) ProfileUserName(ctx context.Context) (string, error) {
	m, err := p.resolveText(ctx, locator.ProfileUserName)
	if err != nil {
		return "", err
	}
	if name := strings.TrimSpace(m.Text); name != "" {
		return name, nil
	}

	res, err := poll.Poll(ctx,
		func(ctx context.Context) (string, error) {
			t, err := p.page.Text(ctx, m.Selector)
			return strings.TrimSpace(t), err
		},
		func(name string) bool { return name != "" },
		p.pollOptions(ProfileAccount),
	)
	if err != nil {
		return "", err
	}
	if !res.Satisfied {
		return "", res.Err()
	}
	return res.Value, nil
}

// IsLoggedIn reports whether the logout control is visible.
func (p *LoginPage) IsLoggedIn(ctx context.Context) (bool, error) {
	return p.visible(ctx, locator.LogoutButton)
}

// ErrorMessage returns the first non-empty error text among the error candidates.
func (p *LoginPage) ErrorMessage(ctx context.Context) (string, error) {
	m, err := p.resolveText(ctx, locator.LoginError)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Text), nil
}

// WaitForError resolves the error element and then polls its text until it matches
// pattern. A text that never matches is a *schemas.AssertionError carrying the last text.
func (p *LoginPage) WaitForError(ctx context.Context, pattern *regexp.Regexp) (string, error) {
	m, err := p.resolveText(ctx, locator.LoginError)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(m.Text)
	if pattern.MatchString(text) {
		return text, nil
	}

	res, err := poll.Poll(ctx,
		func(ctx context.Context) (string, error) {
			t, err := p.page.Text(ctx, m.Selector)
			return strings.TrimSpace(t), err
		},
		pattern.MatchString,
		p.pollOptions(ProfileLoginError),
	)
	if err != nil {
		return "", err
	}
	if !res.Satisfied {
		p.logger.Debug("Login error text did not match.", zap.String("text", res.Value), zap.String("poll", res.Describe()))
		return res.Value, &schemas.AssertionError{Expected: pattern.String(), Actual: res.Value}
	}
	return res.Value, nil
}
