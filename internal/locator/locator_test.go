// internal/locator/locator_test.go
package locator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"go.uber.org/zap/zaptest"
)

// fakeTarget resolves selectors listed in visible/texts immediately and blocks
// on everything else until the candidate context expires.
type fakeTarget struct {
	mu        sync.Mutex
	visible   map[string]bool
	texts     map[string]string
	evaluated []string
	deadlines map[string]time.Duration
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{visible: map[string]bool{}, texts: map[string]string{}, deadlines: map[string]time.Duration{}}
}

func (p *fakeTarget) wait(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.evaluated = append(p.evaluated, selector)
	if dl, ok := ctx.Deadline(); ok {
		p.deadlines[selector] = time.Until(dl)
	}
	ok := p.visible[selector]
	p.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakeTarget) WaitVisible(ctx context.Context, sel string) error { return p.wait(ctx, sel) }
func (p *fakeTarget) WaitPresent(ctx context.Context, sel string) error { return p.wait(ctx, sel) }
func (p *fakeTarget) Text(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[sel], nil
}

func specOf(field string, timeout time.Duration, sels ...string) Spec {
	s := Spec{Field: field}
	for _, sel := range sels {
		s.Candidates = append(s.Candidates, Candidate{Selector: sel, Timeout: timeout, Visible: true})
	}
	return s
}

func TestStrategy_Resolve(t *testing.T) {
	strategy := NewStrategy(zaptest.NewLogger(t), time.Second)

	t.Run("returns candidate k and never evaluates later ones", func(t *testing.T) {
		for k := 0; k < 4; k++ {
			target := newFakeTarget()
			spec := specOf("f", 10*time.Millisecond, "#a", "#b", "#c", "#d")
			target.visible[spec.Candidates[k].Selector] = true

			m, err := strategy.Resolve(context.Background(), target, spec)
			require.NoError(t, err)
			assert.Equal(t, k, m.Index)
			assert.Equal(t, spec.Candidates[k].Selector, m.Selector)
			assert.Equal(t, spec.Selectors()[:k+1], target.evaluated, "each earlier candidate evaluated exactly once, later ones never")
		}
	})

	t.Run("all candidates fail", func(t *testing.T) {
		target := newFakeTarget()
		spec := specOf("loginError", 5*time.Millisecond, "#x", "#y")

		_, err := strategy.Resolve(context.Background(), target, spec)
		var nf *schemas.ElementNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "loginError", nf.Field)
		assert.Equal(t, []string{"#x", "#y"}, nf.Tried)
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	})

	t.Run("empty spec is not found", func(t *testing.T) {
		_, err := strategy.Resolve(context.Background(), newFakeTarget(), Spec{Field: "empty"})
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	})

	t.Run("parent cancellation is not reported as not found", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := strategy.Resolve(ctx, newFakeTarget(), specOf("f", time.Second, "#a"))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("each candidate gets its own timeout", func(t *testing.T) {
		target := newFakeTarget()
		spec := Spec{Field: "f", Candidates: []Candidate{
			{Selector: "#slow", Timeout: 30 * time.Millisecond, Visible: true},
			{Selector: "#default", Visible: true},
		}}
		target.visible["#default"] = true

		_, err := strategy.Resolve(context.Background(), target, spec)
		require.NoError(t, err)
		assert.LessOrEqual(t, target.deadlines["#slow"], 30*time.Millisecond)
		assert.Greater(t, target.deadlines["#default"], 500*time.Millisecond, "zero timeout uses the strategy default")
	})
}

func TestStrategy_ResolveText(t *testing.T) {
	strategy := NewStrategy(zaptest.NewLogger(t), time.Second)

	t.Run("blank text counts as unresolved", func(t *testing.T) {
		target := newFakeTarget()
		spec := specOf("loginError", 10*time.Millisecond, "#name", ".mb-1", ".text-danger")
		target.visible["#name"] = true
		target.texts["#name"] = "   "
		target.visible[".mb-1"] = true
		target.texts[".mb-1"] = "\n Invalid username or password! "

		m, err := strategy.ResolveText(context.Background(), target, spec)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Index)
		assert.Equal(t, "Invalid username or password!", m.Text)
		assert.NotContains(t, target.evaluated, ".text-danger")
	})

	t.Run("invalid login error found across five candidates", func(t *testing.T) {
		target := newFakeTarget()
		spec := DefaultCatalog().MustGet(LoginError)
		require.Len(t, spec.Candidates, 5)
		for _, c := range spec.Candidates {
			assert.Equal(t, 3*time.Second, c.Timeout)
			assert.True(t, c.Visible)
		}

		// Only the first candidate is configured, so nothing blocks.
		target.visible["#name"] = true
		target.texts["#name"] = "Invalid username or password!"
		m, err := strategy.ResolveText(context.Background(), target, spec)
		require.NoError(t, err)
		assert.Regexp(t, `(?i)invalid|not match`, m.Text)
	})
}

func TestCatalog(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := DefaultCatalog().Get("nope")
		assert.Error(t, err)
		assert.Panics(t, func() { DefaultCatalog().MustGet("nope") })
	})

	t.Run("get returns a copy", func(t *testing.T) {
		c := DefaultCatalog()
		s := c.MustGet(LoginError)
		s.Candidates[0].Selector = "#mutated"
		assert.Equal(t, "#name", c.MustGet(LoginError).First())
	})

	t.Run("overrides replace the candidate list and inherit wait settings", func(t *testing.T) {
		hidden := false
		c := NewCatalog(map[string][]config.LocatorCandidate{
			LoginError: {{Selector: "#toast"}, {Selector: ".late", Timeout: time.Second}, {Selector: ".x", Visible: &hidden}},
			"custom":   {{Selector: "#custom", Timeout: 2 * time.Second}},
		})
		s := c.MustGet(LoginError)
		require.Len(t, s.Candidates, 3)
		assert.Equal(t, Candidate{Selector: "#toast", Timeout: 3 * time.Second, Visible: true}, s.Candidates[0])
		assert.Equal(t, time.Second, s.Candidates[1].Timeout)
		assert.False(t, s.Candidates[2].Visible)
		assert.Contains(t, c.Fields(), "custom")
	})

	t.Run("every default field has candidates", func(t *testing.T) {
		c := DefaultCatalog()
		for _, f := range c.Fields() {
			s := c.MustGet(f)
			assert.NotEmpty(t, s.Candidates, f)
			assert.NotEmpty(t, s.First(), f)
		}
	})
}

func TestStrategy_NilLogger(t *testing.T) {
	s := NewStrategy(nil, 0)
	assert.Equal(t, 5*time.Second, s.defaultTimeout)
	_, err := s.Resolve(context.Background(), newFakeTarget(), Spec{})
	assert.True(t, errors.Is(err, schemas.ErrElementNotFound))
}
