package bowgo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hupe1980/bowgo/blobstore"
	"github.com/hupe1980/bowgo/persistence"
	"github.com/hupe1980/bowgo/resource"
)

// SaveToFile atomically writes a snapshot of the store to path. The store
// lock is held while encoding.
func (r *Retriever) SaveToFile(ctx context.Context, path string) error {
	start := time.Now()

	var written int64
	err := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		release := r.store.Acquire()
		defer release()

		return persistence.SaveToFile(path, func(w io.Writer) error {
			cw := &countingWriter{w: w}
			err := persistence.Encode(cw, r.store, r.Level(), r.opts.compression)
			written = cw.n
			return err
		})
	}()
	return r.finishSnapshot(ctx, "save", path, written, start, err)
}

// LoadFromFile replaces the store with the snapshot at path. The snapshot
// is decoded and verified before anything is replaced; on failure the
// store is left untouched. The index level becomes the snapshot's level.
func (r *Retriever) LoadFromFile(ctx context.Context, path string) error {
	start := time.Now()

	var size int64
	err := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		}
		snap, err := persistence.Load(path)
		if err != nil {
			return err
		}
		r.install(ctx, snap)
		return nil
	}()
	return r.finishSnapshot(ctx, "load", path, size, start, err)
}

// SaveTo writes a snapshot of the store to the blob name in bs. The store is
// encoded under the lock; the upload runs after the lock is released and is
// throttled by the resource controller.
func (r *Retriever) SaveTo(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()

	var size int64
	err := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var buf bytes.Buffer
		release := r.store.Acquire()
		err := persistence.Encode(&buf, r.store, r.Level(), r.opts.compression)
		release()
		if err != nil {
			return err
		}
		size = int64(buf.Len())

		if err := r.reserve(ctx, size); err != nil {
			return err
		}
		defer r.opts.resources.ReleaseMemory(size)

		wb, err := bs.Create(ctx, name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(resource.NewWriter(ctx, wb, r.opts.resources), &buf); err != nil {
			_ = blobstore.Abort(wb)
			return err
		}
		if err := wb.Sync(); err != nil {
			_ = blobstore.Abort(wb)
			return err
		}
		return wb.Close()
	}()
	return r.finishSnapshot(ctx, "save", name, size, start, err)
}

// LoadFrom replaces the store with the snapshot stored as name in bs.
func (r *Retriever) LoadFrom(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()

	var size int64
	err := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := bs.Open(ctx, name)
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()

		size = b.Size()
		if err := r.reserve(ctx, size); err != nil {
			return err
		}
		defer r.opts.resources.ReleaseMemory(size)

		data, err := r.readBlob(ctx, b)
		if err != nil {
			return err
		}
		snap, err := persistence.Decode(data)
		if err != nil {
			return err
		}
		r.install(ctx, snap)
		return nil
	}()
	return r.finishSnapshot(ctx, "load", name, size, start, err)
}

// Publish saves a snapshot under name and points the store's latest pointer
// at it.
func (r *Retriever) Publish(ctx context.Context, bs blobstore.BlobStore, name string) error {
	if err := r.SaveTo(ctx, bs, name); err != nil {
		return err
	}
	if err := blobstore.WriteLatest(ctx, bs, name); err != nil {
		err = fmt.Errorf("%w: publish %s: %w", ErrIOFailure, name, err)
		r.logger.ErrorContext(ctx, "publish failed", "snapshot", name, "error", err)
		return err
	}
	r.logger.InfoContext(ctx, "snapshot published", "snapshot", name)
	return nil
}

// LoadLatest loads the snapshot the store's latest pointer names and
// returns that name.
func (r *Retriever) LoadLatest(ctx context.Context, bs blobstore.BlobStore) (string, error) {
	name, err := blobstore.ReadLatest(ctx, bs)
	if err != nil {
		return "", fmt.Errorf("%w: latest pointer: %w", ErrIOFailure, err)
	}
	return name, r.LoadFrom(ctx, bs, name)
}

func (r *Retriever) readBlob(ctx context.Context, b blobstore.Blob) ([]byte, error) {
	size := b.Size()
	if size == 0 {
		return nil, nil
	}
	rc, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data := make([]byte, size)
	if _, err := io.ReadFull(resource.NewReader(ctx, rc, r.opts.resources), data); err != nil {
		return nil, err
	}
	return data, nil
}

// reserve accounts n snapshot bytes against the memory limit.
func (r *Retriever) reserve(ctx context.Context, n int64) error {
	if limit := r.opts.resources.Config().MemoryLimitBytes; limit > 0 && n > limit {
		return fmt.Errorf("snapshot of %d bytes exceeds memory limit of %d bytes", n, limit)
	}
	return r.opts.resources.AcquireMemory(ctx, n)
}

func (r *Retriever) install(ctx context.Context, snap *persistence.Snapshot) {
	release := r.store.Acquire()
	defer release()

	r.store.Swap(snap.Store)
	if snap.Level != r.Level() {
		r.logger.InfoContext(ctx, "adopting snapshot level", "from", r.Level(), "to", snap.Level)
		r.build(snap.Level)
	}
}

func (r *Retriever) finishSnapshot(ctx context.Context, op, location string, size int64, start time.Time, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s %s: %w", ErrIOFailure, op, location, err)
	}

	r.metrics.RecordSnapshot(op, size, time.Since(start), err)
	r.logger.LogSnapshot(ctx, op, location, r.store.Len(), err)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
