package pdfinfo

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// maxDecodedSize bounds stream decompression (64 MB).
const maxDecodedSize = 64 << 20

// decode applies the stream's filters. Only the filters used for structural
// streams (cross-reference and object streams) are supported.
func decode(o *Object) ([]byte, error) {
	filters, ok := o.Dict.Array("Filter")
	if !ok {
		return o.Data, nil
	}
	parms, _ := o.Dict.Array("DecodeParms")

	data := o.Data
	for i, f := range filters {
		if f.Kind != Name {
			continue
		}
		var dp Dict
		if i < len(parms) && parms[i].Kind == Dictionary {
			dp = parms[i].Dict
		}
		var err error
		switch f.Name {
		case "FlateDecode", "Fl":
			data, err = inflate(data, dp)
		default:
			err = fmt.Errorf("unsupported filter %s", f.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func inflate(data []byte, parms Dict) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if len(out) > maxDecodedSize {
		return nil, fmt.Errorf("decoded stream exceeds %d bytes", maxDecodedSize)
	}

	if pred, ok := parms.Int("Predictor"); ok && pred >= 10 {
		return unpredictPNG(out, parms)
	}
	return out, nil
}

// unpredictPNG reverses PNG row prediction as used by cross-reference streams.
func unpredictPNG(data []byte, parms Dict) ([]byte, error) {
	columns := int64(1)
	if c, ok := parms.Int("Columns"); ok && c > 0 {
		columns = c
	}
	colors := int64(1)
	if c, ok := parms.Int("Colors"); ok && c > 0 {
		colors = c
	}
	bpc := int64(8)
	if b, ok := parms.Int("BitsPerComponent"); ok && b > 0 {
		bpc = b
	}
	bpp := int((colors*bpc + 7) / 8)
	rowLen := int((columns*colors*bpc + 7) / 8)
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("predictor: %d bytes is not a multiple of row size %d", len(data), stride)
	}

	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		typ, row := data[off], data[off+1:off+stride]
		cur := make([]byte, rowLen)
		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left, upLeft = cur[i-bpp], prev[i-bpp]
			}
			up := prev[i]
			switch typ {
			case 0:
				cur[i] = row[i]
			case 1:
				cur[i] = row[i] + left
			case 2:
				cur[i] = row[i] + up
			case 3:
				cur[i] = row[i] + byte((int(left)+int(up))/2)
			case 4:
				cur[i] = row[i] + paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predictor: unknown row filter %d", typ)
			}
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
