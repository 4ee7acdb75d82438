package sitecapture

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// contentSizeJS measures the laid out document in CSS pixels.
const contentSizeJS = `(() => {
	const d = document.documentElement, b = document.body || d;
	return {
		width: Math.max(d.scrollWidth, b.scrollWidth, d.clientWidth),
		height: Math.max(d.scrollHeight, b.scrollHeight, d.clientHeight)
	};
})()`

// ChromeLauncher starts headless Chrome engines through chromedp.
type ChromeLauncher struct {
	cfg config
}

// NewChromeLauncher returns a chromedp launcher configured by opts.
func NewChromeLauncher(opts ...Option) *ChromeLauncher {
	return &ChromeLauncher{cfg: newConfig(opts)}
}

// Launch starts a browser process with a single tab.
func (l *ChromeLauncher) Launch(ctx context.Context) (Engine, error) {
	execPath, err := resolveBrowser(l.cfg)
	if err != nil {
		return nil, err
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("headless", l.cfg.headless),
	)
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}
	if l.cfg.noSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	e := &chromeEngine{
		tabCtx:         tabCtx,
		viewportHeight: int64(l.cfg.viewportHeight),
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// Start the browser eagerly so errors surface at launch time.
	if err := e.run(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	return e, nil
}

type chromeEngine struct {
	tabCtx         context.Context
	viewportHeight int64

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	loaded bool
}

// run executes actions in the engine's tab. Cancelling ctx tears the tab
// down, since chromedp actions are bound to the tab context.
func (e *chromeEngine) run(ctx context.Context, actions ...chromedp.Action) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { e.Close() })
	defer stop()
	if err := chromedp.Run(e.tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (e *chromeEngine) Load(ctx context.Context, url string, viewportWidth float64) (Rendering, error) {
	var size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := e.run(ctx,
		chromedp.EmulateViewport(int64(viewportWidth), e.viewportHeight),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(contentSizeJS, &size),
	); err != nil {
		return Rendering{}, err
	}

	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
	return Rendering{ContentWidth: size.Width, ContentHeight: size.Height}, nil
}

func (e *chromeEngine) PrintPDF(ctx context.Context, layout PDFLayout) ([]byte, error) {
	if err := e.checkLoaded(); err != nil {
		return nil, err
	}

	var buf []byte
	err := e.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.PrintToPDF().
			WithPaperWidth(layout.Paper.Width / 72).
			WithPaperHeight(layout.Paper.Height / 72).
			WithMarginTop(0).
			WithMarginRight(0).
			WithMarginBottom(0).
			WithMarginLeft(0).
			WithScale(layout.Scale).
			WithPrintBackground(true)
		if layout.PageRanges != "" {
			params = params.WithPageRanges(layout.PageRanges)
		}

		var err error
		buf, _, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *chromeEngine) Screenshot(ctx context.Context) ([]byte, error) {
	if err := e.checkLoaded(); err != nil {
		return nil, err
	}

	var buf []byte
	// Quality 100 selects PNG encoding.
	if err := e.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *chromeEngine) checkLoaded() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.loaded {
		return fmt.Errorf("no page loaded")
	}
	return nil
}

// Close shuts the browser down. Close is idempotent.
func (e *chromeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.cancel()
	return nil
}
