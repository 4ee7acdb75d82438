package sitecapture_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	sitecapture "github.com/fjoachim/go-site-capture"
	"github.com/fjoachim/go-site-capture/internal/enginetest"
)

// failures counts observer notifications.
type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) CaptureFailed(job sitecapture.Job, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *failures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func newJob(t *testing.T, output string, opts ...sitecapture.JobOption) sitecapture.Job {
	t.Helper()
	j, err := sitecapture.NewJob("https://example.com", output, opts...)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return j
}

// runCapture starts an orchestrator over engine and waits for its outcome.
func runCapture(t *testing.T, job sitecapture.Job, engine *enginetest.Engine, opts ...sitecapture.Option) (*sitecapture.Report, *failures, error) {
	t.Helper()
	obs := &failures{}
	o := sitecapture.NewOrchestrator(job, &enginetest.Launcher{Engine: engine}, opts...)
	o.SetObserver(obs)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := o.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && sitecapture.KindOf(err) == 0 {
		t.Fatal("capture did not finish")
	}
	return report, obs, err
}

func TestCapture_PNGWidth(t *testing.T) {
	for _, ratio := range []float64{1, 2} {
		out := filepath.Join(t.TempDir(), "shot.png")
		engine := &enginetest.Engine{ContentHeight: 1800, PixelRatio: ratio}
		job := newJob(t, out, sitecapture.WithFormat(sitecapture.FormatPNG), sitecapture.WithViewportWidth(1024))

		report, obs, err := runCapture(t, job, engine)
		if err != nil {
			t.Fatalf("pixel ratio %v: capture: %v", ratio, err)
		}
		if obs.count() != 0 {
			t.Errorf("observer called %d times on success", obs.count())
		}

		img, err := imaging.Open(out)
		if err != nil {
			t.Fatalf("opening output: %v", err)
		}
		if got := img.Bounds().Dx(); got != 1024 {
			t.Errorf("pixel ratio %v: image width = %d, want 1024", ratio, got)
		}
		if report.ImageWidth != 1024 || report.ImageHeight != 1800 {
			t.Errorf("pixel ratio %v: report size = %dx%d, want 1024x1800", ratio, report.ImageWidth, report.ImageHeight)
		}
		if report.Pages != 1 {
			t.Errorf("report pages = %d, want 1", report.Pages)
		}
	}
}

func TestCapture_JPEG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "shot.jpg")
	job := newJob(t, out, sitecapture.WithFormat(sitecapture.FormatJPEG), sitecapture.WithViewportWidth(800))

	report, _, err := runCapture(t, job, &enginetest.Engine{ContentHeight: 600}, sitecapture.WithJPEGQuality(70))
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if report.Format != sitecapture.FormatJPEG {
		t.Errorf("report format = %v, want jpeg", report.Format)
	}
	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	if got := img.Bounds().Dx(); got != 800 {
		t.Errorf("image width = %d, want 800", got)
	}
}

func TestCapture_ImageIgnoresPaperSettings(t *testing.T) {
	out := filepath.Join(t.TempDir(), "shot.png")
	engine := &enginetest.Engine{ContentHeight: 5000}
	job := newJob(t, out,
		sitecapture.WithFormat(sitecapture.FormatPNG),
		sitecapture.WithPaginate(true),
		sitecapture.WithPaperSize(sitecapture.Letter),
		sitecapture.WithOrientation(sitecapture.Landscape),
	)

	report, _, err := runCapture(t, job, engine)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if n := len(engine.Layouts()); n != 0 {
		t.Errorf("PrintPDF called %d times for a PNG job", n)
	}
	if engine.Screenshots() != 1 {
		t.Errorf("Screenshot called %d times, want 1", engine.Screenshots())
	}
	if report.Pages != 1 || report.ImageWidth != sitecapture.DefaultViewportWidth {
		t.Errorf("report = %d pages, width %d", report.Pages, report.ImageWidth)
	}
}

func TestCapture_Paginate(t *testing.T) {
	// At the default width of 1024px, one A4 page holds ~1448px of content.
	tests := []struct {
		name      string
		height    float64
		paginate  bool
		wantPages int
	}{
		{"short paginated", 400, true, 1},
		{"long paginated", 4000, true, 3},
		{"very long paginated", 14000, true, 10},
		{"long single page", 4000, false, 1},
		{"very long single page", 14000, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.pdf")
			engine := &enginetest.Engine{ContentHeight: tt.height}
			job := newJob(t, out, sitecapture.WithPaginate(tt.paginate))

			report, _, err := runCapture(t, job, engine)
			if err != nil {
				t.Fatalf("capture: %v", err)
			}
			if report.Pages != tt.wantPages {
				t.Errorf("pages = %d, want %d", report.Pages, tt.wantPages)
			}
			if len(report.PageSizes) != tt.wantPages {
				t.Fatalf("page sizes = %v, want %d entries", report.PageSizes, tt.wantPages)
			}
			if w := report.PageSizes[0].Width; w != sitecapture.A4.Width {
				t.Errorf("page width = %v, want %v", w, sitecapture.A4.Width)
			}
			if tt.paginate && report.PageSizes[0].Height != sitecapture.A4.Height {
				t.Errorf("page height = %v, want %v", report.PageSizes[0].Height, sitecapture.A4.Height)
			}
			if !tt.paginate && report.PageSizes[0].Height <= sitecapture.A4.Height {
				t.Errorf("single page height = %v, want taller than A4", report.PageSizes[0].Height)
			}

			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("reading output: %v", err)
			}
			if string(data[:5]) != "%PDF-" {
				t.Error("output is not a PDF")
			}
			if report.Bytes != len(data) {
				t.Errorf("report bytes = %d, file has %d", report.Bytes, len(data))
			}
		})
	}
}

func TestCapture_Landscape(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	engine := &enginetest.Engine{ContentHeight: 3000}
	job := newJob(t, out,
		sitecapture.WithPaginate(true),
		sitecapture.WithPaperSize(sitecapture.Letter),
		sitecapture.WithOrientation(sitecapture.Landscape),
	)

	report, _, err := runCapture(t, job, engine)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	layouts := engine.Layouts()
	if len(layouts) != 1 {
		t.Fatalf("PrintPDF called %d times, want 1", len(layouts))
	}
	want := sitecapture.PaperSize{Width: 792, Height: 612}
	if layouts[0].Paper != want {
		t.Errorf("paper = %v, want %v", layouts[0].Paper, want)
	}
	for i, s := range report.PageSizes {
		if s.Width <= s.Height {
			t.Errorf("page %d is %v, want landscape", i+1, s)
		}
	}
}

func TestCapture_LoadFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	engine := &enginetest.Engine{LoadErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}

	report, obs, err := runCapture(t, newJob(t, out), engine)
	if !errors.Is(err, sitecapture.ErrLoad) {
		t.Fatalf("error = %v, want ErrLoad", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
	if engine.Exports() != 0 {
		t.Errorf("export attempted %d times after a failed load", engine.Exports())
	}
	if obs.count() != 1 {
		t.Errorf("observer called %d times, want 1", obs.count())
	}
	if engine.Closed() != 1 {
		t.Errorf("engine closed %d times, want 1", engine.Closed())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output file exists after failure: %v", err)
	}
}

func TestCapture_ExportFailure(t *testing.T) {
	tests := []struct {
		name   string
		format sitecapture.Format
		engine *enginetest.Engine
	}{
		{"print", sitecapture.FormatPDF, &enginetest.Engine{ContentHeight: 100, PrintErr: errors.New("printing failed")}},
		{"screenshot", sitecapture.FormatPNG, &enginetest.Engine{ContentHeight: 100, ScreenshotErr: errors.New("capture failed")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out")
			_, obs, err := runCapture(t, newJob(t, out, sitecapture.WithFormat(tt.format)), tt.engine)
			if !errors.Is(err, sitecapture.ErrExport) {
				t.Fatalf("error = %v, want ErrExport", err)
			}
			if obs.count() != 1 {
				t.Errorf("observer called %d times, want 1", obs.count())
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("output file exists after failure: %v", err)
			}
		})
	}
}

func TestCapture_MissingOutputDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "out.pdf")
	engine := &enginetest.Engine{ContentHeight: 100}

	_, obs, err := runCapture(t, newJob(t, out), engine)
	if !errors.Is(err, sitecapture.ErrInvalidOutput) {
		t.Fatalf("error = %v, want ErrInvalidOutput", err)
	}
	if len(engine.Loads()) != 1 {
		t.Errorf("Load called %d times, want 1", len(engine.Loads()))
	}
	if obs.count() != 1 {
		t.Errorf("observer called %d times, want 1", obs.count())
	}
}

func TestCapture_LaunchFailure(t *testing.T) {
	launcher := &enginetest.Launcher{Err: errors.New("chrome not found")}
	job := newJob(t, filepath.Join(t.TempDir(), "out.pdf"))

	_, err := sitecapture.CaptureWith(context.Background(), job, launcher)
	if !errors.Is(err, sitecapture.ErrLoad) {
		t.Fatalf("error = %v, want ErrLoad", err)
	}
	var e *sitecapture.Error
	if !errors.As(err, &e) || e.Op != "launch" {
		t.Errorf("error = %#v, want op launch", err)
	}
}

func TestCapture_Timeout(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	engine := &enginetest.Engine{ContentHeight: 100, Release: make(chan struct{})}

	report, obs, err := runCapture(t, newJob(t, out), engine, sitecapture.WithTimeout(50*time.Millisecond))
	if !errors.Is(err, sitecapture.ErrLoad) {
		t.Fatalf("error = %v, want ErrLoad", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want it to wrap DeadlineExceeded", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}

	// The load completes after the outcome was settled and is dropped.
	close(engine.Release)
	<-engine.Loaded()
	time.Sleep(20 * time.Millisecond)

	if obs.count() != 1 {
		t.Errorf("observer called %d times, want 1", obs.count())
	}
	if engine.Exports() != 0 {
		t.Errorf("late load triggered %d exports", engine.Exports())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output file written after timeout: %v", err)
	}
}

func TestCapture_Cancel(t *testing.T) {
	engine := &enginetest.Engine{ContentHeight: 100, Release: make(chan struct{})}
	defer close(engine.Release)
	job := newJob(t, filepath.Join(t.TempDir(), "out.pdf"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := sitecapture.CaptureWith(ctx, job, &enginetest.Launcher{Engine: engine})
	if !errors.Is(err, sitecapture.ErrLoad) || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want ErrLoad wrapping Canceled", err)
	}
}

func TestCaptureWith_Report(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	job := newJob(t, out, sitecapture.WithPaginate(true))
	engine := &enginetest.Engine{ContentHeight: 2000}

	report, err := sitecapture.CaptureWith(context.Background(), job, &enginetest.Launcher{Engine: engine})
	if err != nil {
		t.Fatalf("CaptureWith: %v", err)
	}
	if report.JobID != job.ID() {
		t.Errorf("JobID = %q, want %q", report.JobID, job.ID())
	}
	if report.SourceURL != "https://example.com" || report.OutputPath != out {
		t.Errorf("report = %s -> %s", report.SourceURL, report.OutputPath)
	}
	if report.Content.ContentHeight != 2000 || report.Content.ContentWidth != sitecapture.DefaultViewportWidth {
		t.Errorf("content = %+v", report.Content)
	}
	if got := engine.Loads(); len(got) != 1 || got[0] != "https://example.com" {
		t.Errorf("loads = %v", got)
	}
	if engine.Closed() != 1 {
		t.Errorf("engine closed %d times, want 1", engine.Closed())
	}
}

func TestOrchestrator_States(t *testing.T) {
	engine := &enginetest.Engine{ContentHeight: 100, Release: make(chan struct{})}
	o := sitecapture.NewOrchestrator(newJob(t, filepath.Join(t.TempDir(), "out.pdf")), &enginetest.Launcher{Engine: engine})

	if o.State() != sitecapture.StateIdle {
		t.Errorf("initial state = %v, want idle", o.State())
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := o.State(); s != sitecapture.StateLoading {
		t.Errorf("state after Start = %v, want loading", s)
	}
	select {
	case <-o.Done():
		t.Fatal("Done closed before the load completed")
	default:
	}

	close(engine.Release)
	<-o.Done()
	if s := o.State(); s != sitecapture.StateDone {
		t.Errorf("final state = %v, want done", s)
	}
}

func TestOrchestrator_StartTwice(t *testing.T) {
	engine := &enginetest.Engine{ContentHeight: 100}
	launcher := &enginetest.Launcher{Engine: engine}
	o := sitecapture.NewOrchestrator(newJob(t, filepath.Join(t.TempDir(), "out.pdf")), launcher)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, sitecapture.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if _, err := o.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if launcher.Launches() != 1 {
		t.Errorf("launched %d engines, want 1", launcher.Launches())
	}

	setters := map[string]func() error{
		"paginate":    func() error { return o.SetPaginate(true) },
		"paper size":  func() error { return o.SetPaperSize(sitecapture.Letter) },
		"orientation": func() error { return o.SetOrientation(sitecapture.Landscape) },
		"viewport":    func() error { return o.SetViewportWidth(800) },
	}
	for name, set := range setters {
		if err := set(); !errors.Is(err, sitecapture.ErrAlreadyStarted) {
			t.Errorf("set %s after Start = %v, want ErrAlreadyStarted", name, err)
		}
	}
}

func TestOrchestrator_Setters(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	engine := &enginetest.Engine{ContentHeight: 3000}
	o := sitecapture.NewOrchestrator(newJob(t, out), &enginetest.Launcher{Engine: engine})

	if err := o.SetPaginate(true); err != nil {
		t.Fatal(err)
	}
	if err := o.SetPaperSize(sitecapture.A5); err != nil {
		t.Fatal(err)
	}
	if err := o.SetOrientation(sitecapture.Landscape); err != nil {
		t.Fatal(err)
	}
	if err := o.SetViewportWidth(1280); err != nil {
		t.Fatal(err)
	}
	if err := o.SetViewportWidth(-1); !errors.Is(err, sitecapture.ErrInvalidInput) {
		t.Errorf("SetViewportWidth(-1) = %v, want ErrInvalidInput", err)
	}
	if w := o.Job().ViewportWidth(); w != 1280 {
		t.Errorf("viewport = %v after rejected update, want 1280", w)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	layouts := engine.Layouts()
	if len(layouts) != 1 {
		t.Fatalf("PrintPDF called %d times, want 1", len(layouts))
	}
	if want := sitecapture.A5.Oriented(sitecapture.Landscape); layouts[0].Paper != want {
		t.Errorf("paper = %v, want %v", layouts[0].Paper, want)
	}
	if layouts[0].Pages < 2 {
		t.Errorf("pages = %d, want several", layouts[0].Pages)
	}
}

func TestOrchestrator_InvalidJob(t *testing.T) {
	launcher := &enginetest.Launcher{Engine: &enginetest.Engine{}}
	obs := &failures{}
	o := sitecapture.NewOrchestrator(sitecapture.Job{}, launcher)
	o.SetObserver(obs)

	err := o.Start(context.Background())
	if !errors.Is(err, sitecapture.ErrInvalidInput) {
		t.Fatalf("Start = %v, want ErrInvalidInput", err)
	}
	select {
	case <-o.Done():
	default:
		t.Fatal("Done not closed after an invalid job")
	}
	if _, werr := o.Wait(context.Background()); !errors.Is(werr, sitecapture.ErrInvalidInput) {
		t.Errorf("Wait = %v, want ErrInvalidInput", werr)
	}
	if launcher.Launches() != 0 {
		t.Errorf("launched %d engines for an invalid job", launcher.Launches())
	}
	if obs.count() != 1 {
		t.Errorf("observer called %d times, want 1", obs.count())
	}
	if o.State() != sitecapture.StateFailed {
		t.Errorf("state = %v, want failed", o.State())
	}
}

func TestOrchestrator_WaitContext(t *testing.T) {
	engine := &enginetest.Engine{ContentHeight: 100, Release: make(chan struct{})}
	o := sitecapture.NewOrchestrator(newJob(t, filepath.Join(t.TempDir(), "out.pdf")), &enginetest.Launcher{Engine: engine})
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := o.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}

	// Giving up on Wait does not abort the capture.
	close(engine.Release)
	if _, err := o.Wait(context.Background()); err != nil {
		t.Errorf("Wait after release = %v, want success", err)
	}
}

func TestObserverFunc(t *testing.T) {
	var got error
	obs := sitecapture.ObserverFunc(func(job sitecapture.Job, err error) { got = err })
	engine := &enginetest.Engine{LoadErr: errors.New("refused")}
	o := sitecapture.NewOrchestrator(newJob(t, filepath.Join(t.TempDir(), "out.pdf")), &enginetest.Launcher{Engine: engine})
	o.SetObserver(obs)
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := o.Wait(context.Background())
	if got != err {
		t.Errorf("observer got %v, Wait returned %v", got, err)
	}
}

func TestOrchestrator_ViewportOutsidePrintRange(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	engine := &enginetest.Engine{ContentHeight: 5000}
	launcher := &enginetest.Launcher{Engine: engine}
	o := sitecapture.NewOrchestrator(newJob(t, out, sitecapture.WithPaginate(true)), launcher)

	for _, w := range []float64{100, 12000} {
		if err := o.SetViewportWidth(w); !errors.Is(err, sitecapture.ErrInvalidInput) {
			t.Errorf("SetViewportWidth(%v) = %v, want ErrInvalidInput", w, err)
		}
	}
	if err := o.SetViewportWidth(400); err != nil {
		t.Fatalf("SetViewportWidth(400): %v", err)
	}
	// 400px is too narrow for landscape A4.
	if err := o.SetOrientation(sitecapture.Landscape); !errors.Is(err, sitecapture.ErrInvalidInput) {
		t.Errorf("SetOrientation(Landscape) = %v, want ErrInvalidInput", err)
	}
	if got := o.Job().Orientation(); got != sitecapture.Portrait {
		t.Errorf("orientation = %v after rejected update, want portrait", got)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	report, err := o.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	layouts := engine.Layouts()
	if len(layouts) != 1 {
		t.Fatalf("PrintPDF called %d times, want 1", len(layouts))
	}
	l := layouts[0]
	if layoutWidth := l.Paper.Width / 0.75 / l.Scale; math.Abs(layoutWidth-400) > 1e-6 {
		t.Errorf("print layout width = %v, want the 400px viewport", layoutWidth)
	}
	// 5000px at 400px wide is ~7441pt of content, nine A4 pages.
	if report.Pages != 9 {
		t.Errorf("pages = %d, want 9", report.Pages)
	}
}
