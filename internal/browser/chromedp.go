package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// opTimeout bounds element-level operations, matching the playwright
// driver's default action timeout.
const opTimeout = 10 * time.Second

// ChromedpDriver is the alternative driver backend, selected with
// `driver: chromedp` in the configuration. It talks CDP directly and
// needs no playwright driver download, which makes it the better fit
// for headless CI boxes.
type ChromedpDriver struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	log        *zap.Logger
}

func NewChromedpDriver(opts Options, log *zap.Logger) (*ChromedpDriver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 720),
	)

	if opts.Persistent {
		contextDir := opts.ContextDir
		if contextDir == "" {
			cwd, _ := os.Getwd()
			contextDir = filepath.Join(cwd, ".browser_context")
		}
		if err := os.MkdirAll(contextDir, 0o755); err != nil {
			return nil, fmt.Errorf("create context dir: %w", err)
		}
		allocOpts = append(allocOpts, chromedp.UserDataDir(contextDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so a broken Chrome install fails fast.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chromedp: %w", err)
	}

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	navTimeout := opts.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}

	return &ChromedpDriver{ctx: browserCtx, cancel: cancel, navTimeout: navTimeout, log: log}, nil
}

// run executes actions against the browser tab on a derived context, so
// a never-settling page hits the timeout and the caller's context can
// cancel an in-flight operation. The tab itself stays alive; only the
// operation is abandoned.
func (d *ChromedpDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (d *ChromedpDriver) Navigate(ctx context.Context, url string) error {
	d.log.Debug("navigate", zap.String("url", url))
	if err := d.run(ctx, d.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (d *ChromedpDriver) Click(ctx context.Context, elementID int) error {
	sel := elementSelector(elementID)
	if err := d.run(ctx, opTimeout,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (d *ChromedpDriver) Fill(ctx context.Context, elementID int, value string) error {
	sel := elementSelector(elementID)
	if err := d.run(ctx, opTimeout,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, value, chromedp.ByQuery),
		// SetValue bypasses input events; fire them so framework bindings notice.
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const el = document.querySelector("%s");
			if (el) {
				el.dispatchEvent(new Event('input', { bubbles: true }));
				el.dispatchEvent(new Event('change', { bubbles: true }));
			}
		})()`, sel), nil),
	); err != nil {
		return fmt.Errorf("fill %s: %w", sel, err)
	}
	return nil
}

func (d *ChromedpDriver) Press(ctx context.Context, key string) error {
	seq := key
	switch key {
	case "Enter":
		seq = "\r"
	case "Escape":
		seq = "\u001b"
	case "Tab":
		seq = "\t"
	}
	if err := d.run(ctx, opTimeout, chromedp.KeyEvent(seq)); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

func (d *ChromedpDriver) Scroll(ctx context.Context, dir ScrollDirection) error {
	delta := scrollStepPx
	if dir == ScrollUp {
		delta = -scrollStepPx
	}
	script := fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'instant'});`, delta)
	if err := d.run(ctx, opTimeout, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (d *ChromedpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, opTimeout, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (d *ChromedpDriver) Snapshot(ctx context.Context) (*PageSnapshot, error) {
	var raw, title, url, html string

	if err := d.run(ctx, opTimeout,
		chromedp.Evaluate(fmt.Sprintf("(%s)()", snapshotScript), &raw),
		chromedp.Title(&title),
		chromedp.Location(&url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	parsed, err := parseSnapshotResult(raw)
	if err != nil {
		return nil, err
	}

	return &PageSnapshot{
		URL:      url,
		Title:    title,
		HTML:     html,
		Tree:     parsed.Tree,
		Elements: parsed.Elements,
	}, nil
}

func (d *ChromedpDriver) URL() string {
	var url string
	_ = d.run(context.Background(), opTimeout, chromedp.Location(&url))
	return url
}

func (d *ChromedpDriver) Close() error {
	d.cancel()
	return nil
}
