package sitecapture

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Result holds one exported document or image before it is written to disk.
type Result struct {
	data      []byte
	format    Format
	pages     int
	pageSizes []PaperSize
	width     int
	height    int
}

// Bytes returns the encoded content.
func (r *Result) Bytes() []byte {
	return r.data
}

// Len returns the size of the encoded content in bytes.
func (r *Result) Len() int {
	return len(r.data)
}

// Format returns the encoding of the content.
func (r *Result) Format() Format {
	return r.format
}

// WriteTo writes the full content to w. It implements [io.WriterTo].
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}

// WriteToFile atomically replaces the file at path with the content.
//
// A missing parent directory or a permission failure is reported as
// [ErrInvalidOutput]; any other failure as [ErrExport].
func (r *Result) WriteToFile(path string, perm os.FileMode) error {
	dir := filepath.Dir(path)
	fi, err := os.Stat(dir)
	if err != nil {
		return newError(KindInvalidOutput, "write", err)
	}
	if !fi.IsDir() {
		return newError(KindInvalidOutput, "write", fmt.Errorf("%s is not a directory", dir))
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return newError(KindInvalidOutput, "write", fmt.Errorf("%s is a directory", path))
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return classifyWriteError(err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return classifyWriteError(err)
	}
	if err := f.Close(); err != nil {
		return classifyWriteError(err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return classifyWriteError(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return classifyWriteError(err)
	}
	return nil
}

func classifyWriteError(err error) error {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		return newError(KindInvalidOutput, "write", err)
	}
	return newError(KindExport, "write", err)
}
