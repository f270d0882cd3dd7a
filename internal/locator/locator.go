// internal/locator/locator.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"go.uber.org/zap"
)

// -- Structs and Constructors --

// Candidate is one way of finding an element.
type Candidate struct {
	Selector string
	Timeout  time.Duration
	// Visible requires the element to be rendered and visible, not merely attached.
	Visible bool
}

// Spec is an immutable, ordered list of candidates for one logical field.
type Spec struct {
	Field      string
	Candidates []Candidate
}

// Selectors lists the candidate selectors in order.
func (s Spec) Selectors() []string {
	out := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		out[i] = c.Selector
	}
	return out
}

// First returns the primary selector, used by actions that do not need fallbacks.
func (s Spec) First() string {
	if len(s.Candidates) == 0 {
		return ""
	}
	return s.Candidates[0].Selector
}

// Probe is the query surface a Strategy evaluates candidates against.
// Implementations block until the condition holds or ctx is done.
type Probe interface {
	WaitVisible(ctx context.Context, selector string) error
	WaitPresent(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
}

// Match is the candidate that resolved.
type Match struct {
	Field    string
	Index    int
	Selector string
	Text     string
}

// Strategy resolves Specs in strict candidate order.
type Strategy struct {
	logger         *zap.Logger
	defaultTimeout time.Duration
}

// NewStrategy creates a Strategy. defaultTimeout applies to candidates declared without one.
func NewStrategy(logger *zap.Logger, defaultTimeout time.Duration) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Strategy{logger: logger.Named("locator"), defaultTimeout: defaultTimeout}
}

// -- Resolution --

// Resolve returns the first candidate that satisfies its wait condition within its own
// timeout. Candidates after the winner are never evaluated and no candidate is retried.
// When all fail the result is a *schemas.ElementNotFoundError.
func (s *Strategy) Resolve(ctx context.Context, probe Probe, spec Spec) (Match, error) {
	return s.resolve(ctx, probe, spec, false)
}

// ResolveText is Resolve with the extra requirement that the element's trimmed text is
// non-empty. A candidate whose element is present but blank counts as unresolved.
func (s *Strategy) ResolveText(ctx context.Context, probe Probe, spec Spec) (Match, error) {
	return s.resolve(ctx, probe, spec, true)
}

func (s *Strategy) resolve(ctx context.Context, probe Probe, spec Spec, needText bool) (Match, error) {
	for i, cand := range spec.Candidates {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}

		text, err := s.try(ctx, probe, cand, needText)
		if err == nil {
			s.logger.Debug("Locator resolved.",
				zap.String("field", spec.Field),
				zap.Int("candidate", i),
				zap.String("selector", cand.Selector))
			return Match{Field: spec.Field, Index: i, Selector: cand.Selector, Text: text}, nil
		}

		// A cancelled parent is not a candidate miss.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Match{}, ctxErr
		}
		s.logger.Debug("Locator candidate missed.",
			zap.String("field", spec.Field),
			zap.String("selector", cand.Selector),
			zap.Error(err))
	}
	return Match{}, &schemas.ElementNotFoundError{Field: spec.Field, Tried: spec.Selectors()}
}

func (s *Strategy) try(ctx context.Context, probe Probe, cand Candidate, needText bool) (string, error) {
	timeout := cand.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if cand.Visible {
		err = probe.WaitVisible(cctx, cand.Selector)
	} else {
		err = probe.WaitPresent(cctx, cand.Selector)
	}
	if err != nil {
		return "", err
	}
	if !needText {
		return "", nil
	}

	text, err := probe.Text(cctx, cand.Selector)
	if err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", cand.Selector, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errBlankText
	}
	return text, nil
}

var errBlankText = errors.New("element text is empty")
