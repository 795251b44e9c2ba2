package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// ErrClosed is returned by reads on a closed File.
var ErrClosed = errors.New("mmap: file is closed")

// Hint tells the kernel how a mapping will be read.
type Hint int

const (
	// Sequential expects front-to-back scans.
	Sequential Hint = iota
	// Random expects scattered reads.
	Random
)

// File is a read-only mapping of a whole file.
type File struct {
	data    []byte
	release func() error
	closed  atomic.Bool
}

// Open maps the file at path read-only. The hint is best effort.
func Open(path string, hint Hint) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &File{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmap: %s: %d bytes exceed the address space", path, size)
	}

	data, release, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap: %s: %w", path, err)
	}
	advise(data, hint)
	return &File{data: data, release: release}, nil
}

// With maps path sequentially, hands the contents to decode and unmaps the
// file before returning. decode must copy anything it keeps.
func With[T any](path string, decode func(data []byte) (T, error)) (T, error) {
	m, err := Open(path, Sequential)
	if err != nil {
		var zero T
		return zero, err
	}
	defer m.Close()
	return decode(m.Bytes())
}

// Bytes returns the mapped contents, or nil once closed. The slice must not
// be used after Close.
func (m *File) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Len returns the mapped length in bytes.
func (m *File) Len() int {
	return len(m.data)
}

// ReadAt implements io.ReaderAt.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mmap: negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file. Repeated calls are no-ops.
func (m *File) Close() error {
	if m.closed.Swap(true) || m.release == nil {
		return nil
	}
	return m.release()
}
