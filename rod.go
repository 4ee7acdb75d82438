package sitecapture

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

const rodContentSizeJS = `() => {
	const d = document.documentElement, b = document.body || d;
	return {
		width: Math.max(d.scrollWidth, b.scrollWidth, d.clientWidth),
		height: Math.max(d.scrollHeight, b.scrollHeight, d.clientHeight)
	};
}`

// RodLauncher starts headless Chrome engines through go-rod.
type RodLauncher struct {
	cfg config
}

// NewRodLauncher returns a go-rod launcher configured by opts.
func NewRodLauncher(opts ...Option) *RodLauncher {
	return &RodLauncher{cfg: newConfig(opts)}
}

// Launch starts a browser process and opens a blank page.
func (l *RodLauncher) Launch(ctx context.Context) (Engine, error) {
	execPath, err := resolveBrowser(l.cfg)
	if err != nil {
		return nil, err
	}

	ln := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(l.cfg.noSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("hide-scrollbars")
	if execPath != "" {
		ln = ln.Bin(execPath)
	}

	controlURL, err := ln.Launch()
	if err != nil {
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	e := &rodEngine{
		launcher:       ln,
		browser:        rod.New().Context(ctx).ControlURL(controlURL),
		viewportHeight: l.cfg.viewportHeight,
	}
	if err := e.browser.Connect(); err != nil {
		e.Close()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	e.connected = true
	e.page, err = e.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return e, nil
}

type rodEngine struct {
	launcher       *launcher.Launcher
	browser        *rod.Browser
	page           *rod.Page
	viewportHeight int

	mu        sync.Mutex
	connected bool
	closed    bool
	loaded    bool
}

// pageFor returns the page bound to ctx.
func (e *rodEngine) pageFor(ctx context.Context, needLoaded bool) (*rod.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if needLoaded && !e.loaded {
		return nil, fmt.Errorf("no page loaded")
	}
	return e.page.Context(ctx), nil
}

func (e *rodEngine) Load(ctx context.Context, url string, viewportWidth float64) (Rendering, error) {
	p, err := e.pageFor(ctx, false)
	if err != nil {
		return Rendering{}, err
	}

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(viewportWidth),
		Height:            e.viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return Rendering{}, fmt.Errorf("setting viewport: %w", err)
	}
	if err := p.Navigate(url); err != nil {
		return Rendering{}, err
	}
	if err := p.WaitLoad(); err != nil {
		return Rendering{}, err
	}

	res, err := p.Eval(rodContentSizeJS)
	if err != nil {
		return Rendering{}, fmt.Errorf("measuring content: %w", err)
	}

	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
	return Rendering{
		ContentWidth:  res.Value.Get("width").Num(),
		ContentHeight: res.Value.Get("height").Num(),
	}, nil
}

func (e *rodEngine) PrintPDF(ctx context.Context, layout PDFLayout) ([]byte, error) {
	p, err := e.pageFor(ctx, true)
	if err != nil {
		return nil, err
	}

	r, err := p.PDF(&proto.PagePrintToPDF{
		PaperWidth:      gson.Num(layout.Paper.Width / 72),
		PaperHeight:     gson.Num(layout.Paper.Height / 72),
		MarginTop:       gson.Num(0),
		MarginRight:     gson.Num(0),
		MarginBottom:    gson.Num(0),
		MarginLeft:      gson.Num(0),
		Scale:           gson.Num(layout.Scale),
		PrintBackground: true,
		PageRanges:      layout.PageRanges,
	})
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func (e *rodEngine) Screenshot(ctx context.Context) ([]byte, error) {
	p, err := e.pageFor(ctx, true)
	if err != nil {
		return nil, err
	}
	return p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close shuts the browser down and removes its profile directory.
// Close is idempotent.
func (e *rodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.connected {
		// The launch context may already be done.
		err = e.browser.Context(context.Background()).Close()
	}
	e.launcher.Kill()
	e.launcher.Cleanup()
	return err
}
