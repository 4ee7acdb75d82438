package sitecapture

import (
	"fmt"
	"math"
	"strings"
)

// PaperSize represents paper dimensions in PostScript points (1/72 inch).
type PaperSize struct {
	Width  float64 // Width in points.
	Height float64 // Height in points.
}

// Standard paper sizes.
var (
	A3      = PaperSize{Width: 841.89, Height: 1190.55}
	A4      = PaperSize{Width: 595.28, Height: 841.89}
	A5      = PaperSize{Width: 419.53, Height: 595.28}
	Letter  = PaperSize{Width: 612, Height: 792}
	Legal   = PaperSize{Width: 612, Height: 1008}
	Tabloid = PaperSize{Width: 792, Height: 1224}
)

var namedSizes = map[string]PaperSize{
	"a3":      A3,
	"a4":      A4,
	"a5":      A5,
	"letter":  Letter,
	"legal":   Legal,
	"tabloid": Tabloid,
}

// ParsePaperSize looks up a standard paper size by name, case-insensitively.
func ParsePaperSize(name string) (PaperSize, error) {
	s, ok := namedSizes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return PaperSize{}, newError(KindInvalidInput, "paper size", fmt.Errorf("unknown paper size %q", name))
	}
	return s, nil
}

func (s PaperSize) valid() bool {
	return s.Width > 0 && s.Height > 0 &&
		!math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Oriented returns s with its axes swapped for landscape.
func (s PaperSize) Oriented(o Orientation) PaperSize {
	if o == Landscape {
		return PaperSize{Width: s.Height, Height: s.Width}
	}
	return s
}

func (s PaperSize) String() string {
	return fmt.Sprintf("%.2fx%.2fpt", s.Width, s.Height)
}

// Orientation represents the page orientation.
type Orientation int

const (
	// Portrait is the default vertical orientation.
	Portrait Orientation = iota
	// Landscape rotates the page to horizontal orientation.
	Landscape
)

func (o Orientation) String() string {
	if o == Landscape {
		return "landscape"
	}
	return "portrait"
}

// ParseOrientation parses "portrait" or "landscape", case-insensitively.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portrait":
		return Portrait, nil
	case "landscape":
		return Landscape, nil
	}
	return 0, newError(KindInvalidInput, "orientation", fmt.Errorf("unknown orientation %q", s))
}

const (
	// pxToPt converts CSS pixels (1/96 inch) to points (1/72 inch).
	pxToPt = 0.75

	// Chrome rejects print scales outside this range.
	minPrintScale = 0.1
	maxPrintScale = 2.0

	pageEpsilon = 1e-6
)

// PDFLayout is the concrete print request handed to an [Engine].
type PDFLayout struct {
	Paper      PaperSize // page size in points, already oriented
	Scale      float64   // print scale, CSS layout width = Paper.Width / 0.75 / Scale
	Pages      int       // planned page count
	PageRanges string    // restricts the engine's output, e.g. "1"; empty means all
}

// PlanPDF computes the PDF layout for a rendered page.
//
// The print scale maps the job's viewport width onto the paper width so the
// engine lays the page out at the same width it was rendered at. Pages are
// consecutive, non-overlapping slices of the scaled content; the last page
// may be partially empty.
func PlanPDF(r Rendering, job Job) PDFLayout {
	paper := job.PaperSize().Oriented(job.Orientation())

	// Valid PDF jobs never reach the clamp; see [Job] validation.
	scale := printScale(paper, job.ViewportWidth())
	scale = math.Max(minPrintScale, math.Min(maxPrintScale, scale))

	contentHeight := r.ContentHeight * pxToPt * scale

	if !job.Paginate() {
		return PDFLayout{
			Paper:      PaperSize{Width: paper.Width, Height: math.Max(contentHeight, 1)},
			Scale:      scale,
			Pages:      1,
			PageRanges: "1",
		}
	}
	return PDFLayout{
		Paper: paper,
		Scale: scale,
		Pages: pageCount(contentHeight, paper.Height),
	}
}

// printScale maps a viewport width in CSS pixels onto the paper width.
func printScale(paper PaperSize, viewportWidth float64) float64 {
	return paper.Width / (viewportWidth * pxToPt)
}

// ViewportRange returns the viewport widths, in CSS pixels, that a PDF on
// paper can be laid out at without exceeding the engine's print scale range.
func ViewportRange(paper PaperSize) (lo, hi float64) {
	return paper.Width / (maxPrintScale * pxToPt), paper.Width / (minPrintScale * pxToPt)
}

// pageCount returns ceil(content/page), at least one.
func pageCount(content, page float64) int {
	if content <= 0 || page <= 0 {
		return 1
	}
	n := int(math.Ceil(content/page - pageEpsilon))
	if n < 1 {
		return 1
	}
	return n
}
