// webkittool renders a web page in a headless browser and saves it as a
// PDF, PNG or JPEG file.
//
// Usage:
//
//	webkittool [options...] <url> <output>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	sitecapture "github.com/fjoachim/go-site-capture"
)

const (
	appName        = "webkittool"
	appDescription = "render a web page with headless Chrome and save it as PDF, PNG or JPEG"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitInvalidInput  = 2
	exitInvalidOutput = 3
	exitLoad          = 4
	exitExport        = 5
)

// usageError reports bad command line arguments.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

type launcherFactory func(opts ...sitecapture.Option) sitecapture.Launcher

func main() {
	// Load .env files (silently ignore if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(appName + ".env")

	os.Exit(run(os.Args, os.Stdout, os.Stderr, sitecapture.NewLauncher))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer, newLauncher launcherFactory) int {
	app := newApp(stdout, stderr, newLauncher)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return exitInvalidInput
	}
	switch sitecapture.KindOf(err) {
	case sitecapture.KindInvalidInput:
		return exitInvalidInput
	case sitecapture.KindInvalidOutput:
		return exitInvalidOutput
	case sitecapture.KindLoad:
		return exitLoad
	case sitecapture.KindExport:
		return exitExport
	}
	return exitFailure
}

func newApp(stdout, stderr io.Writer, newLauncher launcherFactory) *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = version
	app.Usage = appDescription
	app.UsageText = fmt.Sprintf("%s [options...] <url> <output>", appName)
	app.Writer = stdout
	app.ErrWriter = stderr
	// Errors are reported by run, which owns the exit code.
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.OnUsageError = func(_ *cli.Context, err error, _ bool) error {
		return usageError{msg: err.Error()}
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "format, f",
			Usage: "output `FORMAT`: pdf, png or jpeg (default: from the output extension, else pdf)",
		},
		cli.BoolFlag{
			Name:  "paginate, p",
			Usage: "split PDF output into paper-sized pages",
		},
		cli.StringFlag{
			Name:  "paper",
			Usage: "named paper size: a3, a4, a5, letter, legal, tabloid",
			Value: "a4",
		},
		cli.Float64Flag{
			Name:  "paper-width",
			Usage: "paper width in points, overrides --paper",
		},
		cli.Float64Flag{
			Name:  "paper-height",
			Usage: "paper height in points, overrides --paper",
		},
		cli.StringFlag{
			Name:  "orientation, o",
			Usage: "orientation of PDF pages, portrait or landscape",
			Value: "portrait",
		},
		cli.Float64Flag{
			Name:  "browser-width, w",
			Usage: "browser viewport width in pixels",
			Value: sitecapture.DefaultViewportWidth,
		},
		cli.IntFlag{
			Name:  "verbosity, V",
			Usage: "log verbosity from 0 (errors only) to 3 (debug)",
			Value: 1,
		},
		cli.Uint64Flag{
			Name:   "timeout",
			Usage:  "seconds to wait for the capture before giving up, 0 waits forever",
			Value:  60,
			EnvVar: "WEBKITTOOL_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "engine",
			Usage:  "browser driver: chromedp or rod",
			Value:  string(sitecapture.EngineChromedp),
			EnvVar: "WEBKITTOOL_ENGINE",
		},
		cli.StringFlag{
			Name:   "chrome-path",
			Usage:  "`PATH` to the Chrome or Chromium executable",
			EnvVar: "WEBKITTOOL_CHROME_PATH",
		},
		cli.BoolFlag{
			Name:   "no-sandbox",
			Usage:  "disable the Chrome sandbox, required when running as root",
			EnvVar: "WEBKITTOOL_NO_SANDBOX",
		},
		cli.BoolFlag{
			Name:   "auto-download",
			Usage:  "download a compatible Chromium if no browser path is set",
			EnvVar: "WEBKITTOOL_AUTO_DOWNLOAD",
		},
		cli.IntFlag{
			Name:  "jpeg-quality",
			Usage: "JPEG quality from 1 to 100 (default: encoder default)",
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.NArg() != 2 {
			cli.ShowAppHelp(c)
			return usagef("expected <url> and <output>, got %d argument(s)", c.NArg())
		}
		return capture(c, stderr, newLauncher)
	}
	return app
}

// controller runs one capture and observes its failure.
type controller struct {
	log    *slog.Logger
	failed error
}

func (ctl *controller) CaptureFailed(job sitecapture.Job, err error) {
	ctl.failed = err
	ctl.log.Debug("capture failure observed", "job", job.ID(), "kind", sitecapture.KindOf(err).String())
}

func capture(c *cli.Context, stderr io.Writer, newLauncher launcherFactory) error {
	logger := newLogger(stderr, c.Int("verbosity"))

	job, err := jobFromFlags(c)
	if err != nil {
		return err
	}
	opts, err := optionsFromFlags(c, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl := &controller{log: logger}
	orch := sitecapture.NewOrchestrator(job, newLauncher(opts...), opts...)
	orch.SetObserver(ctl)
	if err := orch.Start(ctx); err != nil {
		return err
	}

	report, err := orch.Wait(context.Background())
	if ctl.failed != nil {
		return ctl.failed
	}
	if err != nil {
		return err
	}
	logger.Info("saved", "output", report.OutputPath, "pages", report.Pages, "bytes", report.Bytes)
	return nil
}

func jobFromFlags(c *cli.Context) (sitecapture.Job, error) {
	rawURL, output := c.Args().Get(0), c.Args().Get(1)

	format := sitecapture.FormatPDF
	if c.IsSet("format") {
		f, err := sitecapture.ParseFormat(c.String("format"))
		if err != nil {
			return sitecapture.Job{}, err
		}
		format = f
	} else if f, ok := sitecapture.FormatFromPath(output); ok {
		format = f
	}

	paper, err := sitecapture.ParsePaperSize(c.String("paper"))
	if err != nil {
		return sitecapture.Job{}, err
	}
	if c.IsSet("paper-width") {
		paper.Width = c.Float64("paper-width")
	}
	if c.IsSet("paper-height") {
		paper.Height = c.Float64("paper-height")
	}

	orientation, err := sitecapture.ParseOrientation(c.String("orientation"))
	if err != nil {
		return sitecapture.Job{}, err
	}

	return sitecapture.NewJob(rawURL, output,
		sitecapture.WithFormat(format),
		sitecapture.WithPaginate(c.Bool("paginate")),
		sitecapture.WithPaperSize(paper),
		sitecapture.WithOrientation(orientation),
		sitecapture.WithViewportWidth(c.Float64("browser-width")),
	)
}

func optionsFromFlags(c *cli.Context, logger *slog.Logger) ([]sitecapture.Option, error) {
	opts := []sitecapture.Option{
		sitecapture.WithLogger(logger),
		sitecapture.WithTimeout(time.Duration(c.Uint64("timeout")) * time.Second),
	}

	switch engine := sitecapture.EngineKind(strings.ToLower(c.String("engine"))); engine {
	case sitecapture.EngineChromedp, sitecapture.EngineRod:
		opts = append(opts, sitecapture.WithEngine(engine))
	default:
		return nil, usagef("unknown engine %q", c.String("engine"))
	}

	if path := c.String("chrome-path"); path != "" {
		opts = append(opts, sitecapture.WithChromePath(path))
	}
	if c.Bool("no-sandbox") {
		opts = append(opts, sitecapture.WithNoSandbox())
	}
	if c.Bool("auto-download") {
		opts = append(opts, sitecapture.WithAutoDownload())
	}
	if c.IsSet("jpeg-quality") {
		q := c.Int("jpeg-quality")
		if q < 1 || q > 100 {
			return nil, usagef("jpeg quality must be between 1 and 100, got %d", q)
		}
		opts = append(opts, sitecapture.WithJPEGQuality(q))
	}
	return opts, nil
}

// newLogger maps verbosity 0..3 to error, warn, info and debug.
// LOG_FORMAT=json selects JSON output.
func newLogger(w io.Writer, verbosity int) *slog.Logger {
	var level slog.Level
	switch {
	case verbosity <= 0:
		level = slog.LevelError
	case verbosity == 1:
		level = slog.LevelWarn
	case verbosity == 2:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOptions))
	}
	return slog.New(slog.NewTextHandler(w, handlerOptions))
}
