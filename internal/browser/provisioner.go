// internal/browser/provisioner.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

const (
	defaultViewportWidth  = 1366
	defaultViewportHeight = 900
)

// Provisioner opens an interactive session: a dedicated browser process, an isolated
// browser context inside it, one tab in that context and an API client that shares
// nothing with other sessions.
type Provisioner struct {
	cfg    config.BrowserConfig
	api    apiclient.Options
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	contextID     cdp.BrowserContextID
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	page          *Page
	client        *apiclient.Client
}

// NewProvisioner returns a provisioner for one interactive session.
func NewProvisioner(cfg config.BrowserConfig, api apiclient.Options, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{cfg: cfg, api: api, logger: logger.Named("browser")}
}

func (p *Provisioner) Kind() session.Kind { return session.KindInteractive }

func (p *Provisioner) Layers() []session.Layer {
	return []session.Layer{
		{Name: "browser process", Open: p.openProcess, Close: p.closeProcess},
		{Name: "browser context", Open: p.openContext, Close: p.closeContext},
		{Name: "page", Open: p.openPage, Close: p.closePage},
		{Name: "api client", Open: p.openClient, Close: p.closeClient},
	}
}

func (p *Provisioner) Surface() session.Surface {
	return session.Surface{Page: p.page, API: p.client}
}

// -- Browser process --

func (p *Provisioner) openProcess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg)...)

	var ctxOpts []chromedp.ContextOption
	if p.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(p.logger.Sugar().Debugf))
	}
	ctxOpts = append(ctxOpts, chromedp.WithErrorf(p.logger.Sugar().Errorf))
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run allocates the browser and is bound to browserCtx for its whole
	// lifetime, so it must not carry the caller's deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.logger.Debug("Browser process started.", zap.Bool("headless", p.cfg.Headless))
	return nil
}

func (p *Provisioner) closeProcess(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.browserCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("browser did not shut down in time: %w", ctx.Err())
	}
	p.browserCancel()
	p.allocCancel()
	p.logger.Debug("Browser process stopped.")
	return err
}

// -- Browser context --

func (p *Provisioner) browserExecutor(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := CombineContext(p.browserCtx, ctx)
	return cdp.WithExecutor(opCtx, chromedp.FromContext(p.browserCtx).Browser), cancel
}

func (p *Provisioner) openContext(ctx context.Context) error {
	execCtx, cancel := p.browserExecutor(ctx)
	defer cancel()

	id, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(execCtx)
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	p.contextID = id
	return nil
}

func (p *Provisioner) closeContext(ctx context.Context) error {
	execCtx, cancel := p.browserExecutor(ctx)
	defer cancel()

	if err := target.DisposeBrowserContext(p.contextID).Do(execCtx); err != nil {
		return fmt.Errorf("failed to dispose browser context %s: %w", p.contextID, err)
	}
	return nil
}

// -- Page --

func (p *Provisioner) openPage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx, chromedp.WithExistingBrowserContext(p.contextID))

	width, height := viewport(p.cfg.Viewport)
	// Same as the browser: the first Run creates the target and owns it.
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(width, height)); err != nil {
		tabCancel()
		return fmt.Errorf("failed to open tab: %w", err)
	}

	p.tabCtx = tabCtx
	p.tabCancel = tabCancel
	p.page = newPage(tabCtx, p.cfg.ScreenshotDir, p.logger)
	return nil
}

func (p *Provisioner) closePage(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.tabCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("tab did not close in time: %w", ctx.Err())
	}
	p.tabCancel()
	p.page = nil
	return err
}

// -- API client --

func (p *Provisioner) openClient(context.Context) error {
	c, err := apiclient.New(p.api, p.logger)
	if err != nil {
		return err
	}
	p.client = c
	return nil
}

func (p *Provisioner) closeClient(context.Context) error {
	p.client.Close()
	p.client = nil
	return nil
}

// -- Allocator --

// flag is one Chrome command line switch.
type flag struct {
	name  string
	value any
}

// allocatorFlags lists the switches applied on top of chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"enable-automation", false},
		{"headless", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", true},
	}
	if runtime.GOOS == "linux" {
		flags = append(flags,
			flag{"no-sandbox", true},
			flag{"disable-dev-shm-usage", true},
			flag{"disable-setuid-sandbox", true},
		)
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, flag{name, value})
		} else {
			flags = append(flags, flag{arg, true})
		}
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for one browser process.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	width, height := viewport(cfg.Viewport)
	opts = append(opts, chromedp.WindowSize(int(width), int(height)))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.LaunchTimeout > 0 {
		opts = append(opts, chromedp.WSURLReadTimeout(cfg.LaunchTimeout))
	}
	return opts
}

func viewport(v map[string]int) (int64, int64) {
	width, height := int64(defaultViewportWidth), int64(defaultViewportHeight)
	if w := v["width"]; w > 0 {
		width = int64(w)
	}
	if h := v["height"]; h > 0 {
		height = int64(h)
	}
	return width, height
}
