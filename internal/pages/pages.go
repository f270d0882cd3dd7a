// internal/pages/pages.go

// Package pages holds the page objects of the target application. Page objects address
// the UI only through catalog fields and wait through configured poll profiles.
package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/poll"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// Poll profile names used by the page objects.
const (
	ProfileModal      = "modal"
	ProfileReorder    = "reorder"
	ProfileLoginError = "login_error"
	ProfileAccount    = "profile"
)

// Deps is what every page object shares within one run.
type Deps struct {
	BaseURL  string
	Catalog  *locator.Catalog
	Strategy *locator.Strategy
	Poll     config.PollConfig
	Recorder poll.Recorder
	Logger   *zap.Logger
}

// NewDeps builds Deps from configuration.
func NewDeps(cfg config.Interface, recorder poll.Recorder, logger *zap.Logger) Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Deps{
		BaseURL:  cfg.Target().BaseURL,
		Catalog:  locator.NewCatalog(cfg.Locators()),
		Strategy: locator.NewStrategy(logger, cfg.Poll().Default.Timeout),
		Poll:     cfg.Poll(),
		Recorder: recorder,
		Logger:   logger,
	}
}

func (d Deps) withDefaults() Deps {
	if d.Catalog == nil {
		d.Catalog = locator.DefaultCatalog()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Strategy == nil {
		d.Strategy = locator.NewStrategy(d.Logger, d.Poll.Default.Timeout)
	}
	return d
}

// base carries the plumbing shared by all page objects.
type base struct {
	page   session.Page
	deps   Deps
	logger *zap.Logger
}

func newBase(page session.Page, deps Deps, name string) base {
	deps = deps.withDefaults()
	return base{page: page, deps: deps, logger: deps.Logger.Named(name)}
}

// Page exposes the underlying surface for diagnostics.
func (b base) Page() session.Page { return b.page }

func (b base) open(ctx context.Context, path string) error {
	target := strings.TrimRight(b.deps.BaseURL, "/") + path
	b.logger.Debug("Opening page.", zap.String("url", target))
	return b.page.Navigate(ctx, target)
}

func (b base) resolve(ctx context.Context, field string) (locator.Match, error) {
	spec, err := b.deps.Catalog.Get(field)
	if err != nil {
		return locator.Match{}, err
	}
	return b.deps.Strategy.Resolve(ctx, b.page, spec)
}

func (b base) resolveText(ctx context.Context, field string) (locator.Match, error) {
	spec, err := b.deps.Catalog.Get(field)
	if err != nil {
		return locator.Match{}, err
	}
	return b.deps.Strategy.ResolveText(ctx, b.page, spec)
}

func (b base) fill(ctx context.Context, field, value string) error {
	m, err := b.resolve(ctx, field)
	if err != nil {
		return err
	}
	if err := b.page.Fill(ctx, m.Selector, value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", field, err)
	}
	return nil
}

func (b base) click(ctx context.Context, field string) error {
	m, err := b.resolve(ctx, field)
	if err != nil {
		return err
	}
	if err := b.page.Click(ctx, m.Selector); err != nil {
		return fmt.Errorf("failed to click %s: %w", field, err)
	}
	return nil
}

// clickText clicks the match of field whose text equals want, ignoring case.
func (b base) clickText(ctx context.Context, field, want string) error {
	m, err := b.resolve(ctx, field)
	if err != nil {
		return err
	}
	texts, err := b.page.Texts(ctx, m.Selector)
	if err != nil {
		return err
	}
	for i, t := range texts {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return b.page.ClickNth(ctx, m.Selector, i)
		}
	}
	return &schemas.ElementNotFoundError{Field: field + "[" + want + "]", Tried: []string{m.Selector}}
}

// visible reports whether field resolves. A miss is false, not an error.
func (b base) visible(ctx context.Context, field string) (bool, error) {
	_, err := b.resolve(ctx, field)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, schemas.ErrElementNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (b base) pollOptions(profile string) poll.Options {
	opts := poll.FromProfile(profile, b.deps.Poll.Profile(profile))
	opts.Recorder = b.deps.Recorder
	return opts
}
