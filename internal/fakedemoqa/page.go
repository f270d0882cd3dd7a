// internal/fakedemoqa/page.go
package fakedemoqa

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// Selectors of the real site that the fake renders.
const (
	selUserName     = "#userName"
	selPassword     = "#password"
	selLogin        = "#login"
	selProfileName  = "#userName-value"
	selSubmit       = "#submit"
	selName         = "#name"
	selRegFirst     = "input#firstname"
	selRegLast      = "#lastname"
	selRegister     = "#register"
	selCaptcha      = `iframe[title="reCAPTCHA"]`
	selRegSuccess   = ".text-success"
	selFirstName    = "#firstName"
	selLastName     = "#lastName"
	selEmail        = "#userEmail"
	selEmailInvalid = "#userEmail:invalid"
	selGenderOther  = `label[for="gender-radio-3"]`
	selMobile       = "#userNumber"
	selDateOfBirth  = "#dateOfBirthInput"
	selSubjects     = "#subjectsInput"
	selHobbies      = `label[for^="hobbies-checkbox-"]`
	selPicture      = "#uploadPicture"
	selAddress      = "#currentAddress"
	selState        = "#state"
	selStateOptions = `div[id^="react-select-3-option"]`
	selCity         = "#city"
	selCityOptions  = `div[id^="react-select-4-option"]`
	selModal        = ".modal-content"
	selModalTitle   = "#example-modal-sizes-title-lg"
	selAdBanner     = "#fixedban"
	selGridTab      = "a#demo-tab-grid"
	selGridItems    = ".create-grid .list-group-item"
	selBody         = "body"
)

// Texts the fake UI renders.
const (
	InvalidLoginMessage = "Invalid username or password!"
	CaptchaMessage      = "Please verify reCaptcha to register!"
	RegisteredMessage   = "User Register Successfully."
	ConfirmationTitle   = "Thanks for submitting the form"
)

const waitStep = 5 * time.Millisecond

var (
	gridItems = []string{"One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"}
	hobbies   = []string{"Sports", "Reading", "Music"}
	states    = []string{"NCR", "Uttar Pradesh", "Haryana", "Rajasthan"}
	cities    = map[string][]string{
		"NCR":           {"Delhi", "Gurgaon", "Noida"},
		"Uttar Pradesh": {"Agra", "Lucknow", "Merrut"},
		"Haryana":       {"Karnal", "Panipat"},
		"Rajasthan":     {"Jaipur", "Jaiselmer"},
	}
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[a-zA-Z]{2,}$`)
	mobilePattern = regexp.MustCompile(`^\d{10}$`)

	errClosed      = errors.New("fake page is closed")
	errUnsupported = errors.New("script not supported by the fake page")
)

// EnableCaptcha makes the fake registration form render a reCAPTCHA frame and refuse
// submissions until it is solved, which it never is.
func (s *Server) EnableCaptcha(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captcha = on
}

// SetLoginErrorSelector changes where the fake login form renders its error.
func (s *Server) SetLoginErrorSelector(sel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginErrorSelector = sel
}

// SetUIDelay sets how long asynchronous UI effects take to render.
func (s *Server) SetUIDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uiDelay = d
}

func (s *Server) uiSettings() (captcha bool, loginErr string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captcha, s.loginErrorSelector, s.uiDelay
}

type node struct {
	visible bool
	text    string
	items   []string
}

// FormState is what the fake practice form received.
type FormState struct {
	FirstName, LastName, Email, Mobile string
	Gender, DateOfBirth, Address       string
	State, City                        string
	Subjects, Hobbies, Uploads         []string
	Submitted                          bool
}

// Page is an in-memory rendition of the demoqa pages the journeys visit, backed by the
// server's account store. It satisfies session.Page.
type Page struct {
	srv *Server

	mu         sync.Mutex
	url        string
	generation int
	view       map[string]*node
	values     map[string]string
	form       FormState
	actions    []string
	timers     []*time.Timer
	closed     bool
}

var _ session.Page = (*Page)(nil)

// NewPage opens a fake tab. Close it to stop pending UI effects.
func (s *Server) NewPage() *Page {
	return &Page{srv: s, view: map[string]*node{}, values: map[string]string{}}
}

// Close stops pending effects. Further calls fail.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}

// Actions returns the interaction log, e.g. "click #login".
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Form returns what the practice form received so far.
func (p *Page) Form() FormState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.form
}

func (p *Page) logLocked(format string, args ...any) {
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
}

// later applies fn after the UI delay unless the page navigated away or closed.
func (p *Page) laterLocked(fn func()) {
	_, _, delay := p.srv.uiSettings()
	gen := p.generation
	t := time.AfterFunc(delay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || p.generation != gen {
			return
		}
		fn()
	})
	p.timers = append(p.timers, t)
}

func (p *Page) show(sel, text string) { p.view[sel] = &node{visible: true, text: text} }

// -- Waiting --

func (p *Page) waitFor(ctx context.Context, sel string, visible bool) error {
	ticker := time.NewTicker(waitStep)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		closed := p.closed
		n := p.view[sel]
		p.mu.Unlock()
		if closed {
			return errClosed
		}
		if n != nil && (!visible || n.visible) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Page) WaitVisible(ctx context.Context, sel string) error { return p.waitFor(ctx, sel, true) }
func (p *Page) WaitPresent(ctx context.Context, sel string) error { return p.waitFor(ctx, sel, false) }

func (p *Page) Text(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.view[sel]
	if n == nil {
		return "", fmt.Errorf("no element matches %s", sel)
	}
	if n.items != nil {
		return strings.Join(n.items, "\n"), nil
	}
	return n.text, nil
}

// -- Navigation --

func (p *Page) Navigate(ctx context.Context, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.logLocked("navigate %s", u.Path)
	p.renderLocked(raw, u.Path)
	return nil
}

func (p *Page) renderLocked(raw, path string) {
	p.url = raw
	p.generation++
	p.view = map[string]*node{}
	p.values = map[string]string{}

	captcha, _, _ := p.srv.uiSettings()
	switch path {
	case "/login":
		for _, sel := range []string{selUserName, selPassword, selLogin} {
			p.show(sel, "")
		}
	case "/profile":
		p.show(selSubmit, "Log out")
	case "/register":
		for _, sel := range []string{selRegFirst, selRegLast, selUserName, selPassword, selRegister} {
			p.show(sel, "")
		}
		if captcha {
			p.view[selCaptcha] = &node{visible: true}
		}
	case "/automation-practice-form":
		p.form = FormState{}
		for _, sel := range []string{selFirstName, selLastName, selEmail, selGenderOther, selMobile, selDateOfBirth,
			selSubjects, selPicture, selAddress, selState, selCity, selSubmit} {
			p.show(sel, "")
		}
		p.view[selHobbies] = &node{visible: true, items: append([]string(nil), hobbies...)}
		p.show(selAdBanner, "Advertisement")
	case "/sortable":
		p.show(selGridTab, "Grid")
	}
	p.show(selBody, "DEMOQA "+path)
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Title(context.Context) (string, error) { return "DEMOQA", nil }

// -- Interaction --

// acquire waits for sel and returns its node with the page lock held.
func (p *Page) acquire(ctx context.Context, sel string, visible bool) (*node, error) {
	if err := p.waitFor(ctx, sel, visible); err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := p.view[sel]
	if n == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("element %s detached", sel)
	}
	return n, nil
}

func (p *Page) blockedLocked(sel string) error {
	if _, banner := p.view[selAdBanner]; !banner {
		return nil
	}
	if sel == selSubmit || sel == selHobbies {
		return fmt.Errorf("click on %s intercepted by %s", sel, selAdBanner)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if _, err := p.acquire(ctx, sel, true); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if err := p.blockedLocked(sel); err != nil {
		return err
	}
	p.logLocked("click %s", sel)

	switch sel {
	case selLogin:
		p.submitLoginLocked()
	case selRegister:
		p.submitRegistrationLocked()
	case selGenderOther:
		p.form.Gender = "Other"
	case selState:
		p.view[selStateOptions] = &node{visible: true, items: append([]string(nil), states...)}
	case selCity:
		if p.form.State != "" {
			p.view[selCityOptions] = &node{visible: true, items: append([]string(nil), cities[p.form.State]...)}
		}
	case selSubmit:
		if _, ok := p.view[selModal]; !ok && strings.HasSuffix(p.url, "/automation-practice-form") {
			p.submitFormLocked()
		}
	case selGridTab:
		p.view[selGridItems] = &node{visible: true, items: append([]string(nil), gridItems...)}
	}
	return nil
}

func (p *Page) ClickNth(ctx context.Context, sel string, index int) error {
	n, err := p.acquire(ctx, sel, true)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	if err := p.blockedLocked(sel); err != nil {
		return err
	}
	if index < 0 || index >= len(n.items) {
		return fmt.Errorf("index %d out of range for %d matches of %s", index, len(n.items), sel)
	}
	item := n.items[index]
	p.logLocked("click %s[%d]", sel, index)

	switch sel {
	case selHobbies:
		p.form.Hobbies = toggle(p.form.Hobbies, item)
	case selStateOptions:
		p.form.State, p.form.City = item, ""
		delete(p.view, selStateOptions)
	case selCityOptions:
		p.form.City = item
		delete(p.view, selCityOptions)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if _, err := p.acquire(ctx, sel, true); err != nil {
		return err
	}
	defer p.mu.Unlock()
	p.logLocked("fill %s", sel)
	p.values[sel] = value

	switch sel {
	case selFirstName:
		p.form.FirstName = value
	case selLastName:
		p.form.LastName = value
	case selEmail:
		p.form.Email = value
		if value != "" && !emailPattern.MatchString(value) {
			p.view[selEmailInvalid] = &node{visible: true}
		} else {
			delete(p.view, selEmailInvalid)
		}
	case selMobile:
		p.form.Mobile = value
	case selAddress:
		p.form.Address = value
	}
	return nil
}

func (p *Page) Press(ctx context.Context, sel, key string) error {
	if _, err := p.acquire(ctx, sel, true); err != nil {
		return err
	}
	defer p.mu.Unlock()
	p.logLocked("press %s %s", sel, key)
	if key != "Enter" {
		p.values[sel] += key
		return nil
	}
	switch sel {
	case selSubjects:
		if v := p.values[sel]; v != "" {
			p.form.Subjects = append(p.form.Subjects, v)
			p.values[sel] = ""
		}
	case selDateOfBirth:
		p.form.DateOfBirth = p.values[sel]
	case selPassword:
		if _, ok := p.view[selLogin]; ok {
			p.submitLoginLocked()
		}
	}
	return nil
}

func (p *Page) SetFiles(ctx context.Context, sel string, paths ...string) error {
	if _, err := p.acquire(ctx, sel, false); err != nil {
		return err
	}
	defer p.mu.Unlock()
	for _, path := range paths {
		if path == "" {
			return errors.New("empty upload path")
		}
	}
	p.logLocked("upload %s", sel)
	p.form.Uploads = append(p.form.Uploads, paths...)
	return nil
}

// Drag moves the index-th item to position target once the UI delay has passed.
func (p *Page) Drag(ctx context.Context, sel string, index, target int) error {
	n, err := p.acquire(ctx, sel, true)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	if index < 0 || index >= len(n.items) || target < 0 || target >= len(n.items) {
		return fmt.Errorf("drag %d->%d out of range for %d matches of %s", index, target, len(n.items), sel)
	}
	p.logLocked("drag %s %d->%d", sel, index, target)
	p.laterLocked(func() {
		cur := p.view[sel]
		if cur == nil {
			return
		}
		item := cur.items[index]
		rest := append(append([]string(nil), cur.items[:index]...), cur.items[index+1:]...)
		moved := append(append(append([]string(nil), rest[:target]...), item), rest[target:]...)
		cur.items = moved
	})
	return nil
}

// -- Inspection --

func (p *Page) Texts(_ context.Context, sel string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.view[sel]
	switch {
	case n == nil:
		return []string{}, nil
	case n.items != nil:
		return append([]string(nil), n.items...), nil
	default:
		return []string{strings.TrimSpace(n.text)}, nil
	}
}

func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	texts, err := p.Texts(ctx, sel)
	return len(texts), err
}

// Evaluate understands the overlay removal script only.
func (p *Page) Evaluate(_ context.Context, script string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.Contains(script, "fixedban") {
		p.logLocked("hide overlays")
		delete(p.view, selAdBanner)
		return nil
	}
	return errUnsupported
}

func (p *Page) Screenshot(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logLocked("screenshot %s", name)
	return "memory://" + name + ".png", nil
}

// -- Behaviour --

func (p *Page) submitLoginLocked() {
	c := credentials{UserName: p.values[selUserName], Password: p.values[selPassword]}
	_, errSel, _ := p.srv.uiSettings()
	p.laterLocked(func() {
		u, ok := p.srv.lookup(c)
		if !ok {
			p.show(errSel, InvalidLoginMessage)
			return
		}
		base := strings.TrimSuffix(p.url, "/login")
		p.renderLocked(base+"/profile", "/profile")
		p.show(selProfileName, u.name)
	})
}

func (p *Page) submitRegistrationLocked() {
	captcha, _, _ := p.srv.uiSettings()
	name, password := p.values[selUserName], p.values[selPassword]
	p.laterLocked(func() {
		if captcha {
			p.show(selName, CaptchaMessage)
			return
		}
		status, body := p.srv.createUser(name, password)
		msg, _ := body["message"].(string)
		if status == 201 {
			p.show(selRegSuccess, RegisteredMessage)
			return
		}
		p.show(selName, msg)
	})
}

func (p *Page) submitFormLocked() {
	f := p.form
	valid := f.FirstName != "" && f.LastName != "" && f.Gender != "" &&
		mobilePattern.MatchString(f.Mobile) && (f.Email == "" || emailPattern.MatchString(f.Email))
	if !valid {
		return
	}
	p.form.Submitted = true
	// The modal attaches first and fills its text on a second tick.
	p.laterLocked(func() {
		p.view[selModal] = &node{visible: true}
		p.laterLocked(func() {
			summary := fmt.Sprintf("%s\nStudent Name %s %s\nStudent Email %s\nState and City %s %s",
				ConfirmationTitle, f.FirstName, f.LastName, f.Email, p.form.State, p.form.City)
			p.view[selModal].text = summary
			p.show(selModalTitle, ConfirmationTitle)
		})
	})
}

func toggle(list []string, item string) []string {
	for i, v := range list {
		if v == item {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return append(list, item)
}

// -- Sessions --

// OpenSessions reports sessions provisioned through this server and not yet released.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openSessions
}

// SessionsOpened reports every session ever provisioned through this server.
func (s *Server) SessionsOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsOpened
}

type provisioner struct {
	srv    *Server
	kind   session.Kind
	newAPI func() (session.APIClient, error)
	page   *Page
	api    session.APIClient
}

// Provisioner returns a session provisioner backed by this server. Interactive sessions
// get a fresh fake Page. Every session gets the client built by newAPI.
func (s *Server) Provisioner(kind session.Kind, newAPI func() (session.APIClient, error)) session.Provisioner {
	return &provisioner{srv: s, kind: kind, newAPI: newAPI}
}

func (p *provisioner) Kind() session.Kind { return p.kind }

func (p *provisioner) Layers() []session.Layer {
	layers := []session.Layer{{
		Name: "isolation boundary",
		Open: func(context.Context) error {
			p.srv.mu.Lock()
			defer p.srv.mu.Unlock()
			p.srv.openSessions++
			p.srv.sessionsOpened++
			return nil
		},
		Close: func(context.Context) error {
			p.srv.mu.Lock()
			defer p.srv.mu.Unlock()
			p.srv.openSessions--
			return nil
		},
	}}
	if p.kind == session.KindInteractive {
		layers = append(layers, session.Layer{
			Name:  "fake page",
			Open:  func(context.Context) error { p.page = p.srv.NewPage(); return nil },
			Close: func(context.Context) error { p.page.Close(); return nil },
		})
	}
	return append(layers, session.Layer{
		Name: "api client",
		Open: func(context.Context) error {
			api, err := p.newAPI()
			p.api = api
			return err
		},
		Close: func(context.Context) error {
			if c, ok := p.api.(interface{ Close() }); ok {
				c.Close()
			}
			return nil
		},
	})
}

func (p *provisioner) Surface() session.Surface {
	s := session.Surface{API: p.api}
	if p.page != nil {
		s.Page = p.page
	}
	return s
}
