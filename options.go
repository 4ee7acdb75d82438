package sitecapture

import (
	"log/slog"
	"time"
)

// config holds internal configuration for launchers and orchestrators.
type config struct {
	chromePath     string
	noSandbox      bool
	autoDownload   bool
	headless       string
	engine         EngineKind
	viewportHeight int

	timeout     time.Duration
	logger      *slog.Logger
	jpegQuality int
}

func defaultConfig() config {
	return config{
		headless:       "new",
		engine:         EngineChromedp,
		viewportHeight: 768,
		timeout:        60 * time.Second,
		logger:         slog.New(slog.DiscardHandler),
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Option configures a [Launcher] or an [Orchestrator].
type Option func(*config)

// WithChromePath sets the path to the Chrome or Chromium executable.
// By default the library searches standard locations automatically.
func WithChromePath(path string) Option {
	return func(c *config) {
		c.chromePath = path
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *config) {
		c.noSandbox = true
	}
}

// WithAutoDownload downloads a compatible Chromium when no executable path
// is configured.
func WithAutoDownload() Option {
	return func(c *config) {
		c.autoDownload = true
	}
}

// WithEngine selects the browser driver. Defaults to [EngineChromedp].
func WithEngine(kind EngineKind) Option {
	return func(c *config) {
		c.engine = kind
	}
}

// WithViewportHeight sets the initial browser height in CSS pixels.
// It affects viewport-relative layout only; captures always cover the full
// page height. Defaults to 768.
func WithViewportHeight(h int) Option {
	return func(c *config) {
		if h > 0 {
			c.viewportHeight = h
		}
	}
}

// WithTimeout bounds a whole capture, from engine launch to the written
// file. Defaults to 60 seconds. A zero or negative value disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLogger sets the structured logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithJPEGQuality sets the JPEG quality from 1 to 100. Out of range values
// keep the encoder default.
func WithJPEGQuality(q int) Option {
	return func(c *config) {
		c.jpegQuality = q
	}
}
