package sitecapture

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// encodeImage turns an engine screenshot into the job's raster format.
//
// The result is exactly viewportWidth pixels wide: screenshots taken at a
// device pixel ratio above one are scaled down, and content overflowing the
// viewport horizontally is cropped.
func encodeImage(png []byte, f Format, r Rendering, viewportWidth float64, quality int) (*Result, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}

	width := int(math.Round(viewportWidth))
	img = normalizeWidth(img, r, width)

	var buf bytes.Buffer
	switch f {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case FormatJPEG:
		var opts []imaging.EncodeOption
		if quality >= 1 && quality <= 100 {
			opts = append(opts, imaging.JPEGQuality(quality))
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, opts...)
	default:
		return nil, fmt.Errorf("%v is not an image format", f)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %v: %w", f, err)
	}

	b := img.Bounds()
	return &Result{
		data:   buf.Bytes(),
		format: f,
		pages:  1,
		width:  b.Dx(),
		height: b.Dy(),
	}, nil
}

func normalizeWidth(img image.Image, r Rendering, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() == width {
		return img
	}

	// A screenshot wider than the measured content was taken at a device
	// pixel ratio above one.
	if r.ContentWidth > 0 {
		if ratio := float64(b.Dx()) / r.ContentWidth; ratio > 1.01 {
			img = imaging.Resize(img, int(math.Round(r.ContentWidth)), 0, imaging.Lanczos)
			b = img.Bounds()
		}
	}

	if b.Dx() > width {
		return imaging.CropAnchor(img, width, b.Dy(), imaging.TopLeft)
	}
	if b.Dx() < width {
		return imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	return img
}
