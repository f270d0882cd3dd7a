// internal/session/interfaces.go
package session

import (
	"context"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
)

// Kind fixes which surface a session exposes. It is chosen at construction and never probed.
type Kind string

const (
	KindInteractive Kind = "interactive"
	KindAPI         Kind = "api"
)

// Page is the interactive surface: one browser tab inside an isolated browser context.
type Page interface {
	locator.Probe

	// --- Navigation ---
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// --- Interaction ---
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the index-th match of selector.
	ClickNth(ctx context.Context, selector string, index int) error
	Fill(ctx context.Context, selector, value string) error
	// Press sends a named key (for example "Enter") to the focused element behind selector.
	Press(ctx context.Context, selector, key string) error
	SetFiles(ctx context.Context, selector string, paths ...string) error
	// Drag moves the index-th match of selector onto the target-th match using pointer events.
	Drag(ctx context.Context, selector string, index, target int) error

	// --- Inspection ---
	Texts(ctx context.Context, selector string) ([]string, error)
	Count(ctx context.Context, selector string) (int, error)
	Evaluate(ctx context.Context, script string, out any) error

	// --- Artifacts ---
	// Screenshot writes a full page PNG and returns the path written.
	Screenshot(ctx context.Context, name string) (string, error)
}

// APIClient is the api surface: an HTTP client bound to one cookie jar.
type APIClient interface {
	BaseURL() string
	RegisterUser(ctx context.Context, creds schemas.Credentials) (schemas.RegistrationResult, error)
	GenerateToken(ctx context.Context, creds schemas.Credentials) (schemas.TokenResult, error)
	Login(ctx context.Context, creds schemas.Credentials) (schemas.LoginResult, error)
	GetUser(ctx context.Context, userID, token string) (schemas.Account, error)
	ListBooks(ctx context.Context) ([]schemas.Book, error)
	// LastStatus is the status code of the most recent response, 0 if none.
	LastStatus() int
}

// Surface is what an actor task operates on. Page is set only for interactive
// sessions. API is always set: interactive sessions carry their own client for
// journeys that switch to the HTTP branch.
type Surface struct {
	Kind      Kind
	SessionID string
	Page      Page
	API       APIClient
}

// Provisioner opens the resources of one session. A provisioner instance belongs to
// exactly one Context and is not reused.
type Provisioner interface {
	Kind() Kind
	// Layers lists the nested resources outermost first.
	Layers() []Layer
	// Surface is called once all layers are open.
	Surface() Surface
}

// Factory builds a fresh Provisioner for a session of the given kind.
type Factory func(kind Kind) (Provisioner, error)

// Recorder receives session lifecycle events.
type Recorder interface {
	RecordSession(kind, event string)
}
