package sitecapture

import (
	"fmt"
	"math"
	"net/url"

	"github.com/google/uuid"
)

// DefaultViewportWidth is the browser width used when none is configured.
const DefaultViewportWidth = 1024

// Job describes one capture request. A Job is immutable: the With* methods
// return modified copies.
type Job struct {
	id            string
	sourceURL     string
	outputPath    string
	format        Format
	paginate      bool
	paper         PaperSize
	orientation   Orientation
	viewportWidth float64
}

// JobOption configures a [Job] at construction.
type JobOption func(*Job)

// WithFormat sets the output format. Defaults to [FormatPDF].
func WithFormat(f Format) JobOption {
	return func(j *Job) { j.format = f }
}

// WithPaginate splits PDF output into paper-sized pages.
func WithPaginate(paginate bool) JobOption {
	return func(j *Job) { j.paginate = paginate }
}

// WithPaperSize sets the PDF paper size. Defaults to [A4].
func WithPaperSize(s PaperSize) JobOption {
	return func(j *Job) { j.paper = s }
}

// WithOrientation sets the PDF orientation. Defaults to [Portrait].
func WithOrientation(o Orientation) JobOption {
	return func(j *Job) { j.orientation = o }
}

// WithViewportWidth sets the browser width in CSS pixels.
// Defaults to [DefaultViewportWidth].
func WithViewportWidth(w float64) JobOption {
	return func(j *Job) { j.viewportWidth = w }
}

// NewJob validates and returns a capture job.
func NewJob(sourceURL, outputPath string, opts ...JobOption) (Job, error) {
	j := Job{
		id:            uuid.NewString(),
		sourceURL:     sourceURL,
		outputPath:    outputPath,
		format:        FormatPDF,
		paper:         A4,
		orientation:   Portrait,
		viewportWidth: DefaultViewportWidth,
	}
	for _, o := range opts {
		o(&j)
	}
	if err := j.validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

func (j Job) validate() error {
	if err := validateURL(j.sourceURL); err != nil {
		return err
	}
	if j.outputPath == "" {
		return newError(KindInvalidOutput, "output path", fmt.Errorf("empty output path"))
	}
	switch j.format {
	case FormatPDF, FormatPNG, FormatJPEG:
	default:
		return newError(KindInvalidInput, "format", fmt.Errorf("unsupported format %v", j.format))
	}
	if !j.paper.valid() {
		return newError(KindInvalidInput, "paper size", fmt.Errorf("dimensions must be positive, got %v", j.paper))
	}
	if j.orientation != Portrait && j.orientation != Landscape {
		return newError(KindInvalidInput, "orientation", fmt.Errorf("unsupported orientation %d", int(j.orientation)))
	}
	if !(j.viewportWidth > 0) || math.IsInf(j.viewportWidth, 0) {
		return newError(KindInvalidInput, "viewport width", fmt.Errorf("must be positive, got %v", j.viewportWidth))
	}
	if j.format == FormatPDF {
		paper := j.paper.Oriented(j.orientation)
		if s := printScale(paper, j.viewportWidth); s < minPrintScale || s > maxPrintScale {
			lo, hi := ViewportRange(paper)
			return newError(KindInvalidInput, "viewport width",
				fmt.Errorf("%v px cannot be printed on %v %v paper, use %.0f to %.0f px", j.viewportWidth, j.orientation, paper, math.Ceil(lo), math.Floor(hi)))
		}
	}
	return nil
}

// validateURL accepts http and https URLs with a host, file URLs with a
// path, and about: pages.
func validateURL(raw string) error {
	if raw == "" {
		return newError(KindInvalidInput, "url", fmt.Errorf("empty source URL"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return newError(KindInvalidInput, "url", err)
	}
	if !u.IsAbs() {
		return newError(KindInvalidInput, "url", fmt.Errorf("%q is not an absolute URL", raw))
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return newError(KindInvalidInput, "url", fmt.Errorf("%q has no host", raw))
		}
	case "file":
		if u.Path == "" {
			return newError(KindInvalidInput, "url", fmt.Errorf("%q has no path", raw))
		}
	case "about":
		if u.Opaque == "" {
			return newError(KindInvalidInput, "url", fmt.Errorf("%q names no page", raw))
		}
	default:
		return newError(KindInvalidInput, "url", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	return nil
}

// ID returns the job identifier used in logs and reports.
func (j Job) ID() string { return j.id }

// SourceURL returns the page to capture.
func (j Job) SourceURL() string { return j.sourceURL }

// OutputPath returns the file the capture is written to.
func (j Job) OutputPath() string { return j.outputPath }

// Format returns the output format.
func (j Job) Format() Format { return j.format }

// Paginate reports whether PDF output is split into pages.
func (j Job) Paginate() bool { return j.paginate }

// PaperSize returns the unoriented paper size.
func (j Job) PaperSize() PaperSize { return j.paper }

// Orientation returns the PDF orientation.
func (j Job) Orientation() Orientation { return j.orientation }

// ViewportWidth returns the browser width in CSS pixels.
func (j Job) ViewportWidth() float64 { return j.viewportWidth }

// With returns a copy of j with opts applied, keeping the job ID.
func (j Job) With(opts ...JobOption) (Job, error) {
	c := j
	for _, o := range opts {
		o(&c)
	}
	if err := c.validate(); err != nil {
		return j, err
	}
	return c, nil
}
