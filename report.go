package sitecapture

import (
	"log/slog"
	"time"
)

// Report summarizes a successful capture.
type Report struct {
	JobID      string
	SourceURL  string
	OutputPath string
	Format     Format
	Bytes      int

	// Pages is the page count of a PDF, or 1 for images.
	Pages int
	// PageSizes holds the size of every PDF page, when it could be read
	// back from the document.
	PageSizes []PaperSize

	// ImageWidth and ImageHeight are the pixel dimensions of PNG and JPEG
	// output.
	ImageWidth  int
	ImageHeight int

	Content  Rendering
	Duration time.Duration
}

// LogValue implements [slog.LogValuer].
func (r *Report) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("job", r.JobID),
		slog.String("output", r.OutputPath),
		slog.String("format", r.Format.String()),
		slog.Int("bytes", r.Bytes),
		slog.Int("pages", r.Pages),
		slog.Duration("duration", r.Duration),
	}
	if r.Format.IsImage() {
		attrs = append(attrs, slog.Int("width", r.ImageWidth), slog.Int("height", r.ImageHeight))
	}
	return slog.GroupValue(attrs...)
}
