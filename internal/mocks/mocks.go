// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	args := m.Called()
	return args.Get(0).(config.TargetConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Poll() config.PollConfig {
	args := m.Called()
	return args.Get(0).(config.PollConfig)
}

func (m *MockConfig) Locators() map[string][]config.LocatorCandidate {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string][]config.LocatorCandidate)
}

func (m *MockConfig) Fixture() config.FixtureConfig {
	args := m.Called()
	return args.Get(0).(config.FixtureConfig)
}

func (m *MockConfig) API() config.APIConfig {
	args := m.Called()
	return args.Get(0).(config.APIConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)       { m.Called(b) }
func (m *MockConfig) SetTargetBaseURL(u string)       { m.Called(u) }
func (m *MockConfig) SetEngineActorConcurrency(n int) { m.Called(n) }
func (m *MockConfig) SetFixturePath(p string)         { m.Called(p) }

func (m *MockConfig) Validate() error {
	args := m.Called()
	return args.Error(0)
}

// -- Page Mock --

// MockPage mocks session.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockPage) WaitPresent(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockPage) Text(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockPage) ClickNth(ctx context.Context, selector string, index int) error {
	args := m.Called(ctx, selector, index)
	return args.Error(0)
}

func (m *MockPage) Fill(ctx context.Context, selector, value string) error {
	args := m.Called(ctx, selector, value)
	return args.Error(0)
}

func (m *MockPage) Press(ctx context.Context, selector, key string) error {
	args := m.Called(ctx, selector, key)
	return args.Error(0)
}

func (m *MockPage) SetFiles(ctx context.Context, selector string, paths ...string) error {
	args := m.Called(ctx, selector, paths)
	return args.Error(0)
}

func (m *MockPage) Drag(ctx context.Context, selector string, index, target int) error {
	args := m.Called(ctx, selector, index, target)
	return args.Error(0)
}

func (m *MockPage) Texts(ctx context.Context, selector string) ([]string, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPage) Count(ctx context.Context, selector string) (int, error) {
	args := m.Called(ctx, selector)
	return args.Int(0), args.Error(1)
}

func (m *MockPage) Evaluate(ctx context.Context, script string, out any) error {
	args := m.Called(ctx, script, out)
	return args.Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// -- API Client Mock --

// MockAPIClient mocks session.APIClient.
type MockAPIClient struct {
	mock.Mock
}

func (m *MockAPIClient) BaseURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAPIClient) RegisterUser(ctx context.Context, creds schemas.Credentials) (schemas.RegistrationResult, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(schemas.RegistrationResult), args.Error(1)
}

func (m *MockAPIClient) GenerateToken(ctx context.Context, creds schemas.Credentials) (schemas.TokenResult, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(schemas.TokenResult), args.Error(1)
}

func (m *MockAPIClient) Login(ctx context.Context, creds schemas.Credentials) (schemas.LoginResult, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(schemas.LoginResult), args.Error(1)
}

func (m *MockAPIClient) GetUser(ctx context.Context, userID, token string) (schemas.Account, error) {
	args := m.Called(ctx, userID, token)
	return args.Get(0).(schemas.Account), args.Error(1)
}

func (m *MockAPIClient) ListBooks(ctx context.Context) ([]schemas.Book, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Book), args.Error(1)
}

func (m *MockAPIClient) LastStatus() int {
	args := m.Called()
	return args.Int(0)
}

// -- Provisioner Mock --

// MockProvisioner mocks session.Provisioner. Layers and Surface are plain fields since
// they are data rather than behaviour.
type MockProvisioner struct {
	mock.Mock
	ProvKind    session.Kind
	ProvLayers  []session.Layer
	ProvSurface session.Surface
}

func (m *MockProvisioner) Kind() session.Kind { return m.ProvKind }

func (m *MockProvisioner) Layers() []session.Layer {
	m.Called()
	return m.ProvLayers
}

func (m *MockProvisioner) Surface() session.Surface {
	m.Called()
	return m.ProvSurface
}

var (
	_ config.Interface    = (*MockConfig)(nil)
	_ session.Page        = (*MockPage)(nil)
	_ session.APIClient   = (*MockAPIClient)(nil)
	_ session.Provisioner = (*MockProvisioner)(nil)
)
