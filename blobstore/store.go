package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// LatestName is the blob that names the most recently published snapshot.
const LatestName = "LATEST"

// BlobStore stores immutable snapshot blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a blob for streaming writes. The blob becomes visible
	// when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names with the given prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a blob.
type Blob interface {
	io.Closer

	// ReadAt reads len(p) bytes at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange returns a reader for length bytes at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob under construction.
type WritableBlob interface {
	io.WriteCloser

	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// Aborter is implemented by WritableBlobs that can discard an unfinished
// write so that nothing becomes visible.
type Aborter interface {
	Abort() error
}

// Abort discards w if it supports it, and closes it otherwise.
func Abort(w WritableBlob) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice, valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// ReadAll returns the full content of b. The result never aliases a mapping.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		return bytes.Clone(data), nil
	}

	size := b.Size()
	if size == 0 {
		return []byte{}, nil
	}
	rc, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data := make([]byte, size)
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, fmt.Errorf("blobstore: read %d bytes: %w", size, err)
	}
	return data, nil
}

// ReadLatest returns the snapshot name stored under LatestName.
func ReadLatest(ctx context.Context, s BlobStore) (string, error) {
	b, err := s.Open(ctx, LatestName)
	if err != nil {
		return "", err
	}
	defer func() { _ = b.Close() }()

	data, err := ReadAll(ctx, b)
	if err != nil {
		return "", err
	}
	name := string(bytes.TrimSpace(data))
	if name == "" {
		return "", errors.New("blobstore: empty latest pointer")
	}
	return name, nil
}

// WriteLatest points LatestName at name.
func WriteLatest(ctx context.Context, s BlobStore, name string) error {
	if name == "" {
		return errors.New("blobstore: empty snapshot name")
	}
	return s.Put(ctx, LatestName, []byte(name))
}

// sliceBlob serves a blob held in memory or mapped from disk. release, if
// set, runs once on Close.
type sliceBlob struct {
	data    []byte
	release func() error
}

func (b *sliceBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *sliceBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off > int64(len(b.data)) || length < 0 {
		return nil, io.EOF
	}
	end := min(off+length, int64(len(b.data)))
	return io.NopCloser(bytes.NewReader(b.data[off:end])), nil
}

func (b *sliceBlob) Size() int64 { return int64(len(b.data)) }

func (b *sliceBlob) Bytes() ([]byte, error) { return b.data, nil }

func (b *sliceBlob) Close() error {
	b.data = nil
	if r := b.release; r != nil {
		b.release = nil
		return r()
	}
	return nil
}
