// Package enginetest provides a scriptable in-memory sitecapture.Engine for
// tests that must not depend on a real browser.
package enginetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	sitecapture "github.com/fjoachim/go-site-capture"
)

// Engine is a fake engine. Its exported fields script the outcome of each
// call and must be set before the engine is used.
type Engine struct {
	// ContentHeight is the page height reported by Load, in CSS pixels.
	// The content width always equals the requested viewport width.
	ContentHeight float64
	// PixelRatio scales screenshots, emulating a high-density display.
	// Zero means 1.
	PixelRatio float64

	LoadErr       error
	PrintErr      error
	ScreenshotErr error

	// Release, when non-nil, makes Load wait for it to be closed. Load
	// ignores its context while waiting, like an engine that never
	// delivers its completion signal in time.
	Release chan struct{}

	mu          sync.Mutex
	loads       []string
	layouts     []sitecapture.PDFLayout
	screenshots int
	closed      int
	viewport    float64
	loaded      chan struct{}
}

// Load records the request and returns the scripted rendering.
func (e *Engine) Load(ctx context.Context, url string, viewportWidth float64) (sitecapture.Rendering, error) {
	e.mu.Lock()
	e.loads = append(e.loads, url)
	e.viewport = viewportWidth
	release := e.Release
	e.mu.Unlock()

	if release != nil {
		<-release
	}
	defer e.signalLoaded()

	if e.LoadErr != nil {
		return sitecapture.Rendering{}, e.LoadErr
	}
	return sitecapture.Rendering{ContentWidth: viewportWidth, ContentHeight: e.ContentHeight}, nil
}

// Loaded is closed when the first Load call returns.
func (e *Engine) Loaded() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded == nil {
		e.loaded = make(chan struct{})
	}
	return e.loaded
}

func (e *Engine) signalLoaded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded == nil {
		e.loaded = make(chan struct{})
	}
	select {
	case <-e.loaded:
	default:
		close(e.loaded)
	}
}

// PrintPDF returns a document with layout.Pages pages of layout.Paper size.
func (e *Engine) PrintPDF(ctx context.Context, layout sitecapture.PDFLayout) ([]byte, error) {
	e.mu.Lock()
	e.layouts = append(e.layouts, layout)
	e.mu.Unlock()

	if e.PrintErr != nil {
		return nil, e.PrintErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sizes := make([]sitecapture.PaperSize, layout.Pages)
	for i := range sizes {
		sizes[i] = layout.Paper
	}
	return BuildPDF(sizes), nil
}

// Screenshot returns a white PNG covering the loaded content.
func (e *Engine) Screenshot(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	e.screenshots++
	viewport := e.viewport
	e.mu.Unlock()

	if e.ScreenshotErr != nil {
		return nil, e.ScreenshotErr
	}
	if viewport == 0 {
		return nil, errors.New("enginetest: no page loaded")
	}
	ratio := e.PixelRatio
	if ratio == 0 {
		ratio = 1
	}
	w := int(math.Round(viewport * ratio))
	h := int(math.Round(e.ContentHeight * ratio))
	if h < 1 {
		h = 1
	}
	return PNG(w, h)
}

// Close records the call.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

// Loads returns the URLs passed to Load.
func (e *Engine) Loads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

// Layouts returns the layouts passed to PrintPDF.
func (e *Engine) Layouts() []sitecapture.PDFLayout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sitecapture.PDFLayout(nil), e.layouts...)
}

// Screenshots returns the number of Screenshot calls.
func (e *Engine) Screenshots() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screenshots
}

// Exports returns the number of PrintPDF and Screenshot calls.
func (e *Engine) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.layouts) + e.screenshots
}

// Closed returns the number of Close calls.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Launcher hands out its Engine, or fails with Err.
type Launcher struct {
	Engine *Engine
	Err    error

	mu       sync.Mutex
	launches int
}

// Launch implements sitecapture.Launcher.
func (l *Launcher) Launch(ctx context.Context) (sitecapture.Engine, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Engine, nil
}

// Launches returns the number of Launch calls.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// PNG encodes a white w×h image.
func PNG(w, h int) ([]byte, error) {
	var buf bytes.Buffer
	img := imaging.New(w, h, color.White)
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF writes a minimal, valid PDF with one empty page per size.
func BuildPDF(sizes []sitecapture.PaperSize) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	var kids bytes.Buffer
	for i := range sizes {
		fmt.Fprintf(&kids, " %d 0 R", 3+i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s ] /Count %d >>", kids.String(), len(sizes)))
	for _, s := range sizes {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] >>", s.Width, s.Height))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
