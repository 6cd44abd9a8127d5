package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const loadStateNetworkidle = "networkidle"

// Options configures a driver session. Values come from the read-only
// process configuration and never change after the driver starts.
type Options struct {
	Headless          bool
	SlowMo            time.Duration
	Persistent        bool
	ContextDir        string
	NavigationTimeout time.Duration
}

// PlaywrightDriver drives a Chromium session through playwright. With
// Persistent enabled the browser profile (cookies, local storage, login
// sessions) lives in ContextDir and is reused across runs, so repeated
// manual login is unnecessary.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser // nil when running a persistent context
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
	log     *zap.Logger
}

func NewPlaywrightDriver(opts Options, log *zap.Logger) (*PlaywrightDriver, error) {
	if err := playwright.Install(); err != nil {
		return nil, fmt.Errorf("install pw failed: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start pw failed: %w", err)
	}

	slowMo := playwright.Float(float64(opts.SlowMo.Milliseconds()))
	launchArgs := []string{"--disable-blink-features=AutomationControlled"}
	viewport := &playwright.Size{Width: 1280, Height: 720}

	var browser playwright.Browser
	var browserCtx playwright.BrowserContext

	if opts.Persistent {
		contextDir := opts.ContextDir
		if contextDir == "" {
			cwd, _ := os.Getwd()
			contextDir = filepath.Join(cwd, ".browser_context")
		}
		if err := os.MkdirAll(contextDir, 0o755); err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("create context dir: %w", err)
		}
		browserCtx, err = pw.Chromium.LaunchPersistentContext(
			contextDir,
			playwright.BrowserTypeLaunchPersistentContextOptions{
				Headless: playwright.Bool(opts.Headless),
				SlowMo:   slowMo,
				Viewport: viewport,
				Args:     launchArgs,
			},
		)
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("launch persistent context: %w", err)
		}
	} else {
		browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			SlowMo:   slowMo,
			Args:     launchArgs,
		})
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		browserCtx, err = browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport: viewport,
		})
		if err != nil {
			_ = browser.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("create browser context: %w", err)
		}
	}

	var page playwright.Page
	pages := browserCtx.Pages()
	if len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browserCtx.NewPage()
		if err != nil {
			_ = browserCtx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	navTimeout := opts.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	page.SetDefaultTimeout(10000)
	page.SetDefaultNavigationTimeout(float64(navTimeout.Milliseconds()))

	return &PlaywrightDriver{
		pw:      pw,
		browser: browser,
		context: browserCtx,
		page:    page,
		opts:    opts,
		log:     log,
	}, nil
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	d.log.Debug("navigate", zap.String("url", url))
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	// Network idle is best effort; SPAs may keep sockets open forever.
	state := playwright.LoadState(loadStateNetworkidle)
	_ = d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &state,
		Timeout: playwright.Float(3000),
	})
	return nil
}

func (d *PlaywrightDriver) Click(ctx context.Context, elementID int) error {
	selector := elementSelector(elementID)
	if err := d.page.Locator(selector).First().ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	if err := d.page.Click(selector); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) Fill(ctx context.Context, elementID int, value string) error {
	selector := elementSelector(elementID)
	if err := d.page.Locator(selector).First().ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	if err := d.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) Press(ctx context.Context, key string) error {
	if err := d.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

func (d *PlaywrightDriver) Scroll(ctx context.Context, dir ScrollDirection) error {
	delta := scrollStepPx
	if dir == ScrollUp {
		delta = -scrollStepPx
	}
	script := fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'instant'});`, delta)
	if _, err := d.page.Evaluate(script); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (d *PlaywrightDriver) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (d *PlaywrightDriver) Snapshot(ctx context.Context) (*PageSnapshot, error) {
	if d.page == nil {
		return nil, fmt.Errorf("page is not initialized")
	}

	result, err := d.page.Evaluate(snapshotScript)
	if err != nil {
		return nil, fmt.Errorf("js evaluation failed: %w", err)
	}
	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("expected string from js, got %T", result)
	}
	parsed, err := parseSnapshotResult(raw)
	if err != nil {
		return nil, err
	}

	html, err := d.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	title, _ := d.page.Title()

	return &PageSnapshot{
		URL:      d.page.URL(),
		Title:    title,
		HTML:     html,
		Tree:     parsed.Tree,
		Elements: parsed.Elements,
	}, nil
}

func (d *PlaywrightDriver) URL() string {
	return d.page.URL()
}

func (d *PlaywrightDriver) Close() error {
	if d.context != nil {
		_ = d.context.Close()
	}
	if d.browser != nil {
		_ = d.browser.Close()
	}
	if d.pw != nil {
		_ = d.pw.Stop()
	}
	return nil
}

func elementSelector(id int) string {
	return fmt.Sprintf("[data-softlight-id='%d']", id)
}
