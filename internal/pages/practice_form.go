// internal/pages/practice_form.go
package pages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/poll"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// ConfirmationPattern matches the text of the modal shown after a valid submission.
var ConfirmationPattern = regexp.MustCompile(`(?i)thanks for submitting the form`)

// hideOverlaysScript removes the ad banners, stray modals and iframes that intercept
// pointer events on the practice form.
const hideOverlaysScript = `(() => {
  const hide = (el) => { if (el) el.style.display = 'none'; };
  hide(document.getElementById('fixedban'));
  hide(document.getElementById('adplus-anchor'));
  document.querySelectorAll('.modal, .modal-backdrop, [role="dialog"]').forEach(hide);
  document.querySelectorAll('iframe').forEach(hide);
  return true;
})()`

// PracticeFormPage is /automation-practice-form.
type PracticeFormPage struct {
	base
}

func NewPracticeFormPage(page session.Page, deps Deps) *PracticeFormPage {
	return &PracticeFormPage{base: newBase(page, deps, "practice_form_page")}
}

// Goto opens the form and clears the overlays.
func (p *PracticeFormPage) Goto(ctx context.Context) error {
	if err := p.open(ctx, "/automation-practice-form"); err != nil {
		return err
	}
	return p.HideOverlays(ctx)
}

func (p *PracticeFormPage) HideOverlays(ctx context.Context) error {
	if err := p.page.Evaluate(ctx, hideOverlaysScript, nil); err != nil {
		return fmt.Errorf("failed to hide overlays: %w", err)
	}
	return nil
}

// FillIdentity enters first name, last name and email.
func (p *PracticeFormPage) FillIdentity(ctx context.Context, form schemas.PracticeForm) error {
	if err := p.fill(ctx, locator.FormFirstName, form.FirstName); err != nil {
		return err
	}
	if err := p.fill(ctx, locator.FormLastName, form.LastName); err != nil {
		return err
	}
	return p.fill(ctx, locator.FormEmail, form.Email)
}

// Fill enters every field of form.
func (p *PracticeFormPage) Fill(ctx context.Context, form schemas.PracticeForm) error {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"identity", func(ctx context.Context) error { return p.FillIdentity(ctx, form) }},
		{"gender", func(ctx context.Context) error { return p.click(ctx, locator.FormGender) }},
		{"mobile", func(ctx context.Context) error { return p.fill(ctx, locator.FormMobile, form.Mobile) }},
		{"date of birth", func(ctx context.Context) error { return p.setDateOfBirth(ctx, form.DateOfBirth) }},
		{"subjects", func(ctx context.Context) error { return p.addSubjects(ctx, form.Subjects) }},
		{"hobbies", func(ctx context.Context) error { return p.selectHobbies(ctx, form.Hobbies) }},
		{"picture", func(ctx context.Context) error { return p.uploadPicture(ctx, form.PicturePath) }},
		{"address", func(ctx context.Context) error { return p.fill(ctx, locator.FormAddress, form.Address) }},
		{"state and city", func(ctx context.Context) error { return p.selectStateAndCity(ctx, form.State, form.City) }},
	}
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("practice form %s: %w", s.name, err)
		}
	}
	return nil
}

func (p *PracticeFormPage) setDateOfBirth(ctx context.Context, date string) error {
	if date == "" {
		return nil
	}
	m, err := p.resolve(ctx, locator.FormDateOfBirth)
	if err != nil {
		return err
	}
	if err := p.page.Click(ctx, m.Selector); err != nil {
		return err
	}
	if err := p.page.Fill(ctx, m.Selector, date); err != nil {
		return err
	}
	return p.page.Press(ctx, m.Selector, "Enter")
}

func (p *PracticeFormPage) addSubjects(ctx context.Context, subjects []string) error {
	if len(subjects) == 0 {
		return nil
	}
	m, err := p.resolve(ctx, locator.FormSubjects)
	if err != nil {
		return err
	}
	for _, s := range subjects {
		if err := p.page.Fill(ctx, m.Selector, s); err != nil {
			return err
		}
		if err := p.page.Press(ctx, m.Selector, "Enter"); err != nil {
			return err
		}
	}
	return nil
}

func (p *PracticeFormPage) selectHobbies(ctx context.Context, hobbies []string) error {
	if len(hobbies) == 0 {
		return nil
	}
	if err := p.HideOverlays(ctx); err != nil {
		return err
	}
	for _, h := range hobbies {
		if err := p.clickText(ctx, locator.FormHobby, h); err != nil {
			return err
		}
	}
	return nil
}

func (p *PracticeFormPage) uploadPicture(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	m, err := p.resolve(ctx, locator.FormPicture)
	if err != nil {
		return err
	}
	return p.page.SetFiles(ctx, m.Selector, path)
}

func (p *PracticeFormPage) selectStateAndCity(ctx context.Context, state, city string) error {
	if state == "" {
		return nil
	}
	if err := p.click(ctx, locator.FormState); err != nil {
		return err
	}
	if err := p.clickText(ctx, locator.FormStateOption, state); err != nil {
		return err
	}
	if city == "" {
		return nil
	}
	if err := p.click(ctx, locator.FormCity); err != nil {
		return err
	}
	return p.clickText(ctx, locator.FormCityOption, city)
}

// EmailInvalid reports whether the browser flags the email input as invalid.
func (p *PracticeFormPage) EmailInvalid(ctx context.Context) (bool, error) {
	return p.visible(ctx, locator.FormEmailInvalid)
}

// Submit clears overlays again and presses the submit button.
func (p *PracticeFormPage) Submit(ctx context.Context) error {
	if err := p.HideOverlays(ctx); err != nil {
		return err
	}
	return p.click(ctx, locator.FormSubmit)
}

// WaitConfirmation waits for the modal to attach and then polls its text, which is
// populated after the modal appears, until it reads as a confirmation.
func (p *PracticeFormPage) WaitConfirmation(ctx context.Context) (string, error) {
	m, err := p.resolve(ctx, locator.FormModal)
	if err != nil {
		return "", err
	}
	opts := p.pollOptions(ProfileModal)
	res, err := poll.Poll(ctx,
		func(ctx context.Context) (string, error) { return p.page.Text(ctx, m.Selector) },
		ConfirmationPattern.MatchString,
		opts,
	)
	if err != nil {
		return "", err
	}
	if !res.Satisfied {
		return strings.TrimSpace(res.Value), &schemas.TimeoutError{What: "confirmation modal text", Attempts: res.Attempts, Elapsed: res.Elapsed, LastErr: res.LastErr}
	}
	return strings.TrimSpace(res.Value), nil
}

// ModalTitle returns the title of the confirmation modal.
func (p *PracticeFormPage) ModalTitle(ctx context.Context) (string, error) {
	m, err := p.resolveText(ctx, locator.FormModalTitle)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Text), nil
}
