package persistence

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Snapshot bodies and vocabulary files end with a CRC32 (IEEE) of their
// uncompressed content. It detects corruption, not tampering.

// Checksum returns the CRC32 of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumMismatchError reports a trailer that does not match the content.
// It unwraps to ErrCorrupt.
type ChecksumMismatchError struct {
	Stored   uint32
	Computed uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: stored 0x%08x, computed 0x%08x", e.Stored, e.Computed)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrCorrupt }

// VerifyChecksum checks data against the stored trailer value.
func VerifyChecksum(data []byte, stored uint32) error {
	return verify(Checksum(data), stored)
}

func verify(computed, stored uint32) error {
	if computed != stored {
		return &ChecksumMismatchError{Stored: stored, Computed: computed}
	}
	return nil
}

// running accumulates a CRC32 over every byte that passes through.
type running struct {
	h hash.Hash32
}

func newRunning() running { return running{h: crc32.NewIEEE()} }

// Sum returns the CRC32 of the bytes seen so far.
func (r running) Sum() uint32 { return r.h.Sum32() }

// Verify checks the bytes seen so far against the stored trailer value.
func (r running) Verify(stored uint32) error { return verify(r.h.Sum32(), stored) }

// ChecksumWriter computes the CRC32 of everything written through it.
type ChecksumWriter struct {
	running
	w io.Writer
}

// NewChecksumWriter wraps w.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{running: newRunning(), w: w}
}

func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	_, _ = cw.h.Write(p[:n])
	return n, err
}

// ChecksumReader computes the CRC32 of everything read through it.
type ChecksumReader struct {
	running
	r io.Reader
}

// NewChecksumReader wraps r.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{running: newRunning(), r: r}
}

func (cr *ChecksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	_, _ = cr.h.Write(p[:n])
	return n, err
}
