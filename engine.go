package sitecapture

import "context"

// Rendering describes a loaded page, measured in CSS pixels.
type Rendering struct {
	ContentWidth  float64
	ContentHeight float64
}

// Engine is a browser engine that renders one page at a time.
//
// Load must be called before PrintPDF or Screenshot. Implementations honor
// ctx cancellation on every call.
type Engine interface {
	// Load navigates to url with the given viewport width and waits until
	// the page has finished loading.
	Load(ctx context.Context, url string, viewportWidth float64) (Rendering, error)

	// PrintPDF prints the loaded page with the given layout.
	PrintPDF(ctx context.Context, layout PDFLayout) ([]byte, error)

	// Screenshot captures the full loaded page as a PNG image.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the engine. Close is idempotent.
	Close() error
}

// Launcher starts engines. An [Orchestrator] launches its engine lazily when
// it is started.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// LauncherFunc adapts a function to the [Launcher] interface.
type LauncherFunc func(ctx context.Context) (Engine, error)

// Launch calls f(ctx).
func (f LauncherFunc) Launch(ctx context.Context) (Engine, error) { return f(ctx) }

// EngineKind selects a browser driver.
type EngineKind string

const (
	// EngineChromedp drives Chrome through chromedp.
	EngineChromedp EngineKind = "chromedp"
	// EngineRod drives Chrome through go-rod.
	EngineRod EngineKind = "rod"
)

// NewLauncher returns the launcher configured by opts.
func NewLauncher(opts ...Option) Launcher {
	cfg := newConfig(opts)
	if cfg.engine == EngineRod {
		return &RodLauncher{cfg: cfg}
	}
	return &ChromeLauncher{cfg: cfg}
}
