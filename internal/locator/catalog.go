// internal/locator/catalog.go
package locator

import (
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/demoqa-e2e/internal/config"
)

// Logical field names. Page objects address the UI only through these.
const (
	// -- Login --
	LoginUserName   = "loginUserName"
	LoginPassword   = "loginPassword"
	LoginButton     = "loginButton"
	LoginError      = "loginError"
	ProfileUserName = "profileUserName"
	LogoutButton    = "logoutButton"

	// -- Registration --
	RegisterFirstName = "registerFirstName"
	RegisterLastName  = "registerLastName"
	RegisterUserName  = "registerUserName"
	RegisterPassword  = "registerPassword"
	RegisterButton    = "registerButton"
	RegisterError     = "registerError"
	CaptchaFrame      = "captchaFrame"

	// -- Practice form --
	FormFirstName    = "formFirstName"
	FormLastName     = "formLastName"
	FormEmail        = "formEmail"
	FormEmailInvalid = "formEmailInvalid"
	FormGender       = "formGender"
	FormMobile       = "formMobile"
	FormDateOfBirth  = "formDateOfBirth"
	FormSubjects     = "formSubjects"
	FormHobby        = "formHobby"
	FormPicture      = "formPicture"
	FormAddress      = "formAddress"
	FormState        = "formState"
	FormStateOption  = "formStateOption"
	FormCity         = "formCity"
	FormCityOption   = "formCityOption"
	FormSubmit       = "formSubmit"
	FormModal        = "formModal"
	FormModalTitle   = "formModalTitle"

	// -- Sortable --
	SortableGridTab  = "sortableGridTab"
	SortableGridItem = "sortableGridItem"
)

func visible(selector string, timeout time.Duration) Candidate {
	return Candidate{Selector: selector, Timeout: timeout, Visible: true}
}

func present(selector string, timeout time.Duration) Candidate {
	return Candidate{Selector: selector, Timeout: timeout}
}

// Catalog maps field names to their Specs.
type Catalog struct {
	specs map[string]Spec
}

// DefaultCatalog returns the built-in locators for the demoqa pages.
func DefaultCatalog() *Catalog {
	const (
		field   = 10 * time.Second
		short   = 3 * time.Second
		profile = 5 * time.Second
	)
	c := &Catalog{specs: make(map[string]Spec)}
	add := func(name string, cands ...Candidate) {
		c.specs[name] = Spec{Field: name, Candidates: cands}
	}

	add(LoginUserName, visible("#userName", field))
	add(LoginPassword, visible("#password", field))
	add(LoginButton, visible("#login", field))
	add(LoginError,
		visible("#name", short),
		visible(".mb-1", short),
		visible(".text-danger", short),
		visible(".alert-danger", short),
		visible(".error-message", short),
	)
	add(ProfileUserName, visible("#userName-value", profile))
	add(LogoutButton, visible("#submit", field))

	add(RegisterFirstName, visible("input#firstname", field))
	add(RegisterLastName, visible("#lastname", field))
	add(RegisterUserName, visible("#userName", field))
	add(RegisterPassword, visible("#password", field))
	add(RegisterButton, visible("#register", field))
	add(RegisterError, visible("#name", field), visible(".text-danger", short))
	add(CaptchaFrame, present(`iframe[src*="google.com/recaptcha"]`, short), present(`iframe[title="reCAPTCHA"]`, short))

	add(FormFirstName, visible("#firstName", field))
	add(FormLastName, visible("#lastName", field))
	add(FormEmail, visible("#userEmail", field))
	add(FormEmailInvalid, present("#userEmail:invalid", short))
	add(FormGender, visible(`label[for="gender-radio-3"]`, field))
	add(FormMobile, visible("#userNumber", field))
	add(FormDateOfBirth, visible("#dateOfBirthInput", field))
	add(FormSubjects, visible("#subjectsInput", field))
	add(FormHobby, visible(`label[for^="hobbies-checkbox-"]`, field))
	add(FormPicture, present("#uploadPicture", field))
	add(FormAddress, visible("#currentAddress", field))
	add(FormState, visible("#state", field))
	add(FormStateOption, visible(`div[id^="react-select-3-option"]`, short))
	add(FormCity, visible("#city", field))
	add(FormCityOption, visible(`div[id^="react-select-4-option"]`, short))
	add(FormSubmit, present("#submit", field))
	add(FormModal, present(".modal-content", 7*time.Second))
	add(FormModalTitle, present("#example-modal-sizes-title-lg", 7*time.Second), present(".modal-title", 7*time.Second))

	add(SortableGridTab, visible("a#demo-tab-grid", field))
	add(SortableGridItem, visible(".create-grid .list-group-item", field))
	return c
}

// NewCatalog returns the default catalog with configured overrides applied.
// An override replaces the whole candidate list of its field.
func NewCatalog(overrides map[string][]config.LocatorCandidate) *Catalog {
	c := DefaultCatalog()
	for name, cands := range overrides {
		if len(cands) == 0 {
			continue
		}
		fallback := c.specs[name]
		spec := Spec{Field: name, Candidates: make([]Candidate, 0, len(cands))}
		for i, oc := range cands {
			cand := Candidate{Selector: oc.Selector, Timeout: oc.Timeout, Visible: true}
			// Inherit wait settings from the built-in candidate at the same position.
			if i < len(fallback.Candidates) {
				if cand.Timeout <= 0 {
					cand.Timeout = fallback.Candidates[i].Timeout
				}
				cand.Visible = fallback.Candidates[i].Visible
			}
			if oc.Visible != nil {
				cand.Visible = *oc.Visible
			}
			spec.Candidates = append(spec.Candidates, cand)
		}
		c.specs[name] = spec
	}
	return c
}

// Get returns the Spec for a field, or an error for unknown fields.
func (c *Catalog) Get(name string) (Spec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("no locator registered for field %q", name)
	}
	// Return a copy so callers cannot mutate the catalog.
	spec.Candidates = append([]Candidate(nil), spec.Candidates...)
	return spec, nil
}

// MustGet is Get for fields known at compile time.
func (c *Catalog) MustGet(name string) Spec {
	spec, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return spec
}

// Fields lists every registered field, sorted.
func (c *Catalog) Fields() []string {
	out := make([]string, 0, len(c.specs))
	for name := range c.specs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
