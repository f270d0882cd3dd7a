// internal/pages/sortable.go
package pages

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/internal/locator"
	"github.com/xkilldash9x/demoqa-e2e/internal/poll"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

// SortablePage is /sortable, grid tab.
type SortablePage struct {
	base
}

func NewSortablePage(page session.Page, deps Deps) *SortablePage {
	return &SortablePage{base: newBase(page, deps, "sortable_page")}
}

func (p *SortablePage) Goto(ctx context.Context) error {
	return p.open(ctx, "/sortable")
}

func (p *SortablePage) OpenGrid(ctx context.Context) error {
	return p.click(ctx, locator.SortableGridTab)
}

// Order returns the grid item labels in display order.
func (p *SortablePage) Order(ctx context.Context) ([]string, error) {
	m, err := p.resolve(ctx, locator.SortableGridItem)
	if err != nil {
		return nil, err
	}
	return p.page.Texts(ctx, m.Selector)
}

// Shuffle drags the grid items into a Fisher-Yates permutation driven by rng. After
// each drag it polls until the order changes. A drag the page does not honour is
// logged and shuffling goes on. It returns the order before and after.
func (p *SortablePage) Shuffle(ctx context.Context, rng *rand.Rand) (before, after []string, err error) {
	m, err := p.resolve(ctx, locator.SortableGridItem)
	if err != nil {
		return nil, nil, err
	}
	before, err = p.page.Texts(ctx, m.Selector)
	if err != nil {
		return nil, nil, err
	}
	n := len(before)
	if n < 2 {
		return before, before, fmt.Errorf("grid has %d items, nothing to shuffle", n)
	}

	current := slices.Clone(before)
	drag := func(i, j int) error {
		if err := p.page.Drag(ctx, m.Selector, i, j); err != nil {
			return fmt.Errorf("drag %d->%d: %w", i, j, err)
		}
		prev := current
		res, err := poll.Poll(ctx,
			func(ctx context.Context) ([]string, error) { return p.page.Texts(ctx, m.Selector) },
			func(order []string) bool { return !slices.Equal(order, prev) },
			p.pollOptions(ProfileReorder),
		)
		if err != nil {
			return err
		}
		if res.TimedOut {
			p.logger.Warn("Grid did not reorder after drag.", zap.Int("from", i), zap.Int("to", j), zap.String("poll", res.Describe()))
		}
		if res.Value != nil {
			current = res.Value
		}
		return nil
	}

	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		if i == j {
			continue
		}
		if err := drag(i, j); err != nil {
			return before, current, err
		}
	}
	// An identity permutation would leave nothing to observe.
	if slices.Equal(current, before) {
		if err := drag(0, n-1); err != nil {
			return before, current, err
		}
	}

	after, err = p.page.Texts(ctx, m.Selector)
	if err != nil {
		return before, current, err
	}
	return before, after, nil
}
