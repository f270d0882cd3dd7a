// internal/pages/registration.go
package pages

import (
	"context"
	"strings"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// CaptchaState is the result of probing the registration form for a CAPTCHA.
type CaptchaState int

const (
	CaptchaAbsent CaptchaState = iota
	CaptchaPresent
)

func (c CaptchaState) String() string {
	if c == CaptchaPresent {
		return "present"
	}
	return "absent"
}

// RegistrationPage is the /register form.
type RegistrationPage struct {
	base
}

func NewRegistrationPage(page session.Page, deps Deps) *RegistrationPage {
	return &RegistrationPage{base: newBase(page, deps, "registration_page")}
}

func (p *RegistrationPage) Goto(ctx context.Context) error {
	return p.open(ctx, "/register")
}

// Fill enters the names and credentials.
func (p *RegistrationPage) Fill(ctx context.Context, firstName, lastName string, creds schemas.Credentials) error {
	for _, f := range []struct{ field, value string }{
		{locator.RegisterFirstName, firstName},
		{locator.RegisterLastName, lastName},
		{locator.RegisterUserName, creds.UserName},
		{locator.RegisterPassword, creds.Password},
	} {
		if err := p.fill(ctx, f.field, f.value); err != nil {
			return err
		}
	}
	return nil
}

// ProbeCaptcha reports whether a CAPTCHA frame is rendered. Automation cannot solve
// it, so callers pick the HTTP branch when it is present.
func (p *RegistrationPage) ProbeCaptcha(ctx context.Context) (CaptchaState, error) {
	present, err := p.visible(ctx, locator.CaptchaFrame)
	if err != nil {
		return CaptchaAbsent, err
	}
	if present {
		p.logger.Info("CAPTCHA detected on registration form.")
		return CaptchaPresent, nil
	}
	return CaptchaAbsent, nil
}

func (p *RegistrationPage) Submit(ctx context.Context) error {
	return p.click(ctx, locator.RegisterButton)
}

// ErrorMessage returns the validation text shown after a rejected submission.
func (p *RegistrationPage) ErrorMessage(ctx context.Context) (string, error) {
	m, err := p.resolveText(ctx, locator.RegisterError)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Text), nil
}

// IsCaptchaRejection reports whether a registration error was caused by the CAPTCHA
// rather than by the submitted data.
func IsCaptchaRejection(message string) bool {
	return strings.Contains(strings.ToLower(message), "recaptcha")
}
