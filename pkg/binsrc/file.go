package binsrc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// File is a Source backed by a file on disk. Every read opens the file,
// reads the requested range and closes it again, so a File value carries
// no open handle between calls and may be shared freely.
type File struct {
	path    string
	comment string
	order   binary.ByteOrder
	size    int64
}

// NewFile creates a file-backed source. The comment is a free-form label
// carried alongside the path for diagnostics. The file is stat'd once to
// record its size.
func NewFile(path, comment string, order binary.ByteOrder) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &File{path: path, comment: comment, order: order, size: info.Size()}, nil
}

func (f *File) Bytes(start, length int64, transform Transform) ([]byte, error) {
	start, length = clampRange(start, length, f.size)
	if length == 0 {
		return applyTransform(nil, transform)
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.path, err)
	}
	defer fh.Close()

	buf := make([]byte, length)
	n, err := fh.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %d bytes at offset %#x from %s: %w", length, start, f.path, err)
	}
	return applyTransform(buf[:n], transform)
}

func (f *File) Size() int64 {
	return f.size
}

func (f *File) Order() binary.ByteOrder {
	return f.order
}

// Path reports the file path backing the source.
func (f *File) Path() string {
	return f.path
}

// Comment reports the free-form label attached at construction.
func (f *File) Comment() string {
	return f.comment
}
