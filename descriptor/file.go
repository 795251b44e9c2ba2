package descriptor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/bowgo/internal/mmap"
	"github.com/hupe1980/bowgo/persistence"
)

const (
	// fileMagic identifies descriptor dump files (ASCII: "DSC1").
	fileMagic   = 0x44534331
	fileVersion = 1
)

// ErrInvalidFile is returned when a descriptor dump cannot be parsed.
var ErrInvalidFile = errors.New("descriptor: invalid descriptor file")

type fileHeader struct {
	Magic   uint32
	Version uint32
	Type    uint8
	_       [3]byte
	Width   uint32
	Count   uint32
}

// WriteTo writes b as a descriptor dump.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	h := fileHeader{
		Magic:   fileMagic,
		Version: fileVersion,
		Type:    uint8(b.typ),
		Width:   uint32(b.width),
		Count:   uint32(b.Len()),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return 0, err
	}
	buf := make([]byte, 4*len(b.data))
	for i, v := range b.data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	n, err := w.Write(buf)
	return int64(binary.Size(h)) + int64(n), err
}

// Decode parses a descriptor dump held in memory.
func Decode(data []byte) (*Buffer, error) {
	var h fileHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if h.Magic != fileMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidFile, h.Magic)
	}
	if h.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFile, h.Version)
	}
	if h.Width == 0 {
		return nil, fmt.Errorf("%w: zero width", ErrInvalidFile)
	}
	n := int(h.Width) * int(h.Count)
	body := data[binary.Size(h):]
	if len(body) != 4*n {
		return nil, fmt.Errorf("%w: expected %d payload bytes, got %d", ErrInvalidFile, 4*n, len(body))
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return &Buffer{typ: Type(h.Type), width: int(h.Width), data: values}, nil
}

// ReadFile loads a descriptor dump.
func ReadFile(path string) (*Buffer, error) {
	return mmap.With(path, Decode)
}

// WriteFile atomically writes b to path.
func WriteFile(path string, b *Buffer) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		_, err := b.WriteTo(w)
		return err
	})
}
