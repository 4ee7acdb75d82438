package sitecapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjoachim/go-site-capture/internal/pdfinfo"
)

// State is a step in the life of an [Orchestrator].
type State int

const (
	StateIdle State = iota
	StateLoading
	StateExporting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateExporting:
		return "exporting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Observer is notified when a capture fails.
type Observer interface {
	CaptureFailed(job Job, err error)
}

// ObserverFunc adapts a function to the [Observer] interface.
type ObserverFunc func(job Job, err error)

// CaptureFailed calls f(job, err).
func (f ObserverFunc) CaptureFailed(job Job, err error) { f(job, err) }

// Orchestrator drives one capture job through a browser engine: it launches
// the engine, loads the page, exports it and writes the output file.
//
// An Orchestrator runs exactly once and produces exactly one outcome, which
// [Orchestrator.Wait] returns. Failures are also delivered to the registered
// [Observer]. Signals arriving after the outcome is settled are dropped.
type Orchestrator struct {
	launcher Launcher
	cfg      config

	mu       sync.Mutex
	job      Job
	observer Observer
	state    State

	once   sync.Once
	done   chan struct{}
	report *Report
	err    error
}

// NewOrchestrator returns an idle orchestrator for job. The launcher is not
// called until [Orchestrator.Start].
func NewOrchestrator(job Job, launcher Launcher, opts ...Option) *Orchestrator {
	return &Orchestrator{
		launcher: launcher,
		cfg:      newConfig(opts),
		job:      job,
		done:     make(chan struct{}),
	}
}

// configure replaces the job with a modified copy while still idle.
func (o *Orchestrator) configure(opt JobOption) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return ErrAlreadyStarted
	}
	j, err := o.job.With(opt)
	if err != nil {
		return err
	}
	o.job = j
	return nil
}

// SetPaginate splits PDF output into paper-sized pages.
func (o *Orchestrator) SetPaginate(paginate bool) error {
	return o.configure(WithPaginate(paginate))
}

// SetPaperSize sets the PDF paper size.
func (o *Orchestrator) SetPaperSize(s PaperSize) error {
	return o.configure(WithPaperSize(s))
}

// SetOrientation sets the PDF orientation.
func (o *Orchestrator) SetOrientation(orientation Orientation) error {
	return o.configure(WithOrientation(orientation))
}

// SetViewportWidth sets the browser width in CSS pixels.
func (o *Orchestrator) SetViewportWidth(w float64) error {
	return o.configure(WithViewportWidth(w))
}

// SetObserver registers the failure observer, replacing any previous one.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observer = obs
}

// Job returns the job as currently configured.
func (o *Orchestrator) Job() Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done is closed once the outcome is settled.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Start begins the capture and returns without waiting for it. ctx governs
// the whole capture and must stay valid until the outcome is settled.
//
// Start returns [ErrAlreadyStarted] if called more than once. An invalid job
// fails immediately, before any engine is launched.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	job := o.job
	if err := job.validate(); err != nil {
		o.state = StateFailed
		o.mu.Unlock()
		o.finish(job, nil, err)
		return err
	}
	o.state = StateLoading
	o.mu.Unlock()

	go o.run(ctx, job)
	return nil
}

// Wait blocks until the capture finishes or ctx is done. It returns the
// report of a successful capture or the structured [*Error] of a failed one.
func (o *Orchestrator) Wait(ctx context.Context) (*Report, error) {
	select {
	case <-o.done:
		return o.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) outcome() (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report, o.err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

func (o *Orchestrator) run(ctx context.Context, job Job) {
	log := o.cfg.logger.With("job", job.ID())
	log.Info("capture started", "url", job.SourceURL(), "format", job.Format().String(), "output", job.OutputPath())

	report, err := o.execute(ctx, job, log)
	o.finish(job, report, err)
}

// execute owns the engine for the duration of one capture.
func (o *Orchestrator) execute(ctx context.Context, job Job, log *slog.Logger) (*Report, error) {
	start := time.Now()
	if o.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.timeout)
		defer cancel()
	}

	engine, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, newError(KindLoad, "launch", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Debug("closing engine", "err", err)
		}
	}()

	rendering, err := awaitLoad(ctx, engine, job)
	if err != nil {
		return nil, newError(KindLoad, "load", err)
	}
	log.Debug("page loaded", "width", rendering.ContentWidth, "height", rendering.ContentHeight)

	o.setState(StateExporting)
	res, err := o.export(ctx, engine, job, rendering, log)
	if err != nil {
		return nil, err
	}
	if err := res.WriteToFile(job.OutputPath(), 0o644); err != nil {
		return nil, err
	}

	return &Report{
		JobID:       job.ID(),
		SourceURL:   job.SourceURL(),
		OutputPath:  job.OutputPath(),
		Format:      job.Format(),
		Bytes:       res.Len(),
		Pages:       res.pages,
		PageSizes:   res.pageSizes,
		ImageWidth:  res.width,
		ImageHeight: res.height,
		Content:     rendering,
		Duration:    time.Since(start),
	}, nil
}

// awaitLoad waits for the engine's load to complete or ctx to end. A load
// that completes after ctx ended is discarded.
func awaitLoad(ctx context.Context, engine Engine, job Job) (Rendering, error) {
	type loadResult struct {
		rendering Rendering
		err       error
	}
	ch := make(chan loadResult, 1)
	go func() {
		r, err := engine.Load(ctx, job.SourceURL(), job.ViewportWidth())
		ch <- loadResult{r, err}
	}()

	select {
	case res := <-ch:
		return res.rendering, res.err
	case <-ctx.Done():
		return Rendering{}, ctx.Err()
	}
}

func (o *Orchestrator) export(ctx context.Context, engine Engine, job Job, r Rendering, log *slog.Logger) (*Result, error) {
	if job.Format() != FormatPDF {
		png, err := engine.Screenshot(ctx)
		if err != nil {
			return nil, newError(KindExport, "screenshot", err)
		}
		res, err := encodeImage(png, job.Format(), r, job.ViewportWidth(), o.cfg.jpegQuality)
		if err != nil {
			return nil, newError(KindExport, "encode", err)
		}
		return res, nil
	}

	layout := PlanPDF(r, job)
	log.Debug("printing", "paper", layout.Paper.String(), "scale", layout.Scale, "pages", layout.Pages)
	data, err := engine.PrintPDF(ctx, layout)
	if err != nil {
		return nil, newError(KindExport, "print", err)
	}
	if len(data) == 0 {
		return nil, newError(KindExport, "print", errors.New("engine returned an empty document"))
	}

	res := &Result{data: data, format: FormatPDF, pages: layout.Pages}
	inspectPDF(res, layout, log)
	return res, nil
}

// inspectPDF reads the page structure back from the printed document.
func inspectPDF(res *Result, layout PDFLayout, log *slog.Logger) {
	doc, err := pdfinfo.Load(res.data)
	if err != nil {
		log.Warn("inspecting pdf", "err", err)
		return
	}
	pages, err := doc.Pages()
	if err != nil {
		log.Warn("inspecting pdf", "err", err)
		return
	}
	if len(pages) != layout.Pages {
		log.Info("page count differs from layout", "planned", layout.Pages, "actual", len(pages))
	}
	res.pages = len(pages)
	res.pageSizes = make([]PaperSize, len(pages))
	for i, p := range pages {
		res.pageSizes[i] = PaperSize{Width: p.Width, Height: p.Height}
	}
}

// finish settles the outcome. Only the first call has an effect; it
// reports whether this call settled the outcome.
func (o *Orchestrator) finish(job Job, report *Report, err error) bool {
	settled := false
	o.once.Do(func() {
		settled = true

		o.mu.Lock()
		o.report, o.err = report, err
		if err != nil {
			o.state = StateFailed
		} else {
			o.state = StateDone
		}
		obs := o.observer
		o.mu.Unlock()

		log := o.cfg.logger.With("job", job.ID())
		if err != nil {
			log.Error("capture failed", "err", err)
			if obs != nil {
				obs.CaptureFailed(job, err)
			}
		} else {
			log.Info("capture finished", "report", report)
		}
		close(o.done)
	})
	if !settled {
		o.cfg.logger.Debug("dropping late capture signal", "job", job.ID(), "err", err)
	}
	return settled
}
