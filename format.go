package sitecapture

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the output file format of a capture.
type Format int

const (
	// FormatPDF prints the page to a PDF document.
	FormatPDF Format = iota
	// FormatPNG captures a lossless raster image.
	FormatPNG
	// FormatJPEG captures a lossy raster image.
	FormatJPEG
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Extension returns the conventional file extension, including the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + f.String()
}

// MIMEType returns the media type of the encoded output.
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	}
	return "application/pdf"
}

// IsImage reports whether f is a raster format.
func (f Format) IsImage() bool {
	return f == FormatPNG || f == FormatJPEG
}

// ParseFormat parses a format name. Matching is case-insensitive and "jpg"
// is accepted as an alias for "jpeg".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	}
	return 0, newError(KindInvalidInput, "format", fmt.Errorf("unknown format %q", s))
}

// FormatFromPath infers the format from path's extension.
func FormatFromPath(path string) (Format, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return 0, false
	}
	f, err := ParseFormat(ext)
	if err != nil {
		return 0, false
	}
	return f, true
}
