package persistence

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
)

// BinaryWriter writes little-endian scalars. The first error is sticky:
// later writes are no-ops and Err reports it.
type BinaryWriter struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

// NewBinaryWriter creates a new binary writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

func (bw *BinaryWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	bw.err = err
}

// WriteHeader writes the file header, stamping magic and version.
func (bw *BinaryWriter) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	if bw.err != nil {
		return bw.err
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, header)
	if bw.err == nil {
		bw.n += headerSize
	}
	return bw.err
}

// WriteUint32 writes v.
func (bw *BinaryWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(bw.buf[:4], v)
	bw.write(bw.buf[:4])
}

// WriteFloat64 writes the IEEE 754 bits of v.
func (bw *BinaryWriter) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], math.Float64bits(v))
	bw.write(bw.buf[:8])
}

// WriteUint32Slice writes each element of s.
func (bw *BinaryWriter) WriteUint32Slice(s []uint32) {
	for _, v := range s {
		bw.WriteUint32(v)
	}
}

// WriteBytes writes p as is.
func (bw *BinaryWriter) WriteBytes(p []byte) {
	bw.write(p)
}

// Written returns the number of bytes written so far.
func (bw *BinaryWriter) Written() int64 { return bw.n }

// Err returns the first write error.
func (bw *BinaryWriter) Err() error { return bw.err }

// SaveToFile is a helper to save data to a file atomically.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

// LoadFromFile is a helper to load data from a file.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewReaderSize(f, 256*1024)
	return readFunc(buf)
}
