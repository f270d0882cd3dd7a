// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// dragSteps is the number of intermediate pointer moves in a drag gesture.
const dragSteps = 12

var errNoElement = errors.New("no element matches selector")

// Page drives one tab through chromedp. Every call runs on the tab's target but
// honours the caller's deadline and cancellation.
type Page struct {
	tab           context.Context
	screenshotDir string
	logger        *zap.Logger
}

func newPage(tab context.Context, screenshotDir string, logger *zap.Logger) *Page {
	return &Page{tab: tab, screenshotDir: screenshotDir, logger: logger.Named("page")}
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(p.tab, ctx)
	defer cancel()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// -- Probe --

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *Page) WaitPresent(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// Text returns the rendered text of the first match. It does not wait.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var out *string
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? (el.innerText || el.textContent || "") : null; })()`, jsString(selector))
	if err := p.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%w: %s", errNoElement, selector)
	}
	return *out, nil
}

// -- Navigation --

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var t string
	err := p.run(ctx, chromedp.Title(&t))
	return t, err
}

// -- Interaction --

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *Page) ClickNth(ctx context.Context, selector string, index int) error {
	var nodes []*cdp.Node
	return p.run(ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if index < 0 || index >= len(nodes) {
				return fmt.Errorf("index %d out of range for %d matches of %s", index, len(nodes), selector)
			}
			return chromedp.MouseClickNode(nodes[index]).Do(ctx)
		}),
	)
}

// Fill replaces the value of an input with value, typed as key events.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"ArrowDown":  kb.ArrowDown,
	"ArrowUp":    kb.ArrowUp,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
}

func (p *Page) Press(ctx context.Context, selector, key string) error {
	if k, ok := namedKeys[key]; ok {
		key = k
	}
	return p.run(ctx, chromedp.SendKeys(selector, key, chromedp.ByQuery))
}

func (p *Page) SetFiles(ctx context.Context, selector string, paths ...string) error {
	abs := make([]string, 0, len(paths))
	for _, path := range paths {
		a, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve upload %q: %w", path, err)
		}
		if _, err := os.Stat(a); err != nil {
			return fmt.Errorf("upload file unavailable: %w", err)
		}
		abs = append(abs, a)
	}
	return p.run(ctx, chromedp.SetUploadFiles(selector, abs, chromedp.ByQuery))
}

// Drag presses on the centre of the index-th match, moves in small steps to the
// centre of the target-th match and releases there.
func (p *Page) Drag(ctx context.Context, selector string, index, target int) error {
	var nodes []*cdp.Node
	return p.run(ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if index < 0 || index >= len(nodes) || target < 0 || target >= len(nodes) {
				return fmt.Errorf("drag %d->%d out of range for %d matches of %s", index, target, len(nodes), selector)
			}
			if err := dom.ScrollIntoViewIfNeeded().WithNodeID(nodes[index].NodeID).Do(ctx); err != nil {
				return fmt.Errorf("could not scroll drag source into view: %w", err)
			}
			from, err := nodeCenter(ctx, nodes[index].NodeID)
			if err != nil {
				return fmt.Errorf("could not get starting element position: %w", err)
			}
			to, err := nodeCenter(ctx, nodes[target].NodeID)
			if err != nil {
				return fmt.Errorf("could not get ending element position: %w", err)
			}
			return dragGesture(ctx, from, to)
		}),
	)
}

type point struct{ X, Y float64 }

func nodeCenter(ctx context.Context, id cdp.NodeID) (point, error) {
	box, err := dom.GetBoxModel().WithNodeID(id).Do(ctx)
	if err != nil {
		return point{}, err
	}
	if box == nil || len(box.Content) < 8 {
		return point{}, errors.New("element has no layout box")
	}
	return point{
		X: (box.Content[0] + box.Content[2] + box.Content[4] + box.Content[6]) / 4,
		Y: (box.Content[1] + box.Content[3] + box.Content[5] + box.Content[7]) / 4,
	}, nil
}

func leftHeld(p *input.DispatchMouseEventParams) *input.DispatchMouseEventParams {
	return p.WithButtons(1)
}

func dragGesture(ctx context.Context, from, to point) error {
	actions := []chromedp.Action{
		chromedp.MouseEvent(input.MouseMoved, from.X, from.Y),
		chromedp.MouseEvent(input.MousePressed, from.X, from.Y, chromedp.ButtonLeft, chromedp.ClickCount(1)),
	}
	for i := 1; i <= dragSteps; i++ {
		f := float64(i) / dragSteps
		x := from.X + (to.X-from.X)*f
		y := from.Y + (to.Y-from.Y)*f
		actions = append(actions, chromedp.MouseEvent(input.MouseMoved, x, y, chromedp.ButtonLeft, leftHeld), chromedp.Sleep(15*time.Millisecond))
	}
	actions = append(actions, chromedp.MouseEvent(input.MouseReleased, to.X, to.Y, chromedp.ButtonLeft, chromedp.ClickCount(1)))
	return chromedp.Tasks(actions).Do(ctx)
}

// -- Inspection --

func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	var out []string
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s), el => (el.innerText || el.textContent || "").trim())`, jsString(selector))
	if err := p.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n))
	return n, err
}

// Evaluate runs script in the page and decodes its result into out (nil discards it).
func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

// -- Artifacts --

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Screenshot captures the full page as PNG into the configured directory.
func (p *Page) Screenshot(ctx context.Context, name string) (string, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}

	dir := p.screenshotDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "demoqa-e2e")
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	file := filepath.Join(dir, fmt.Sprintf("%s-%d.png", unsafeName.ReplaceAllString(name, "_"), time.Now().UnixNano()))
	if err := os.WriteFile(file, buf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	p.logger.Info("Screenshot saved.", zap.String("path", file))
	return file, nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
