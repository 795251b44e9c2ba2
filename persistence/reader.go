package persistence

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SliceReader provides bounds-checked reads from a byte slice.
// Out-of-bounds reads return ErrCorrupt.
type SliceReader struct {
	b   []byte
	off int
}

func NewSliceReader(b []byte) *SliceReader {
	return &SliceReader{b: b, off: 0}
}

func (r *SliceReader) Offset() int {
	if r == nil {
		return 0
	}
	return r.off
}

// Len returns the number of unread bytes.
func (r *SliceReader) Len() int {
	return len(r.b) - r.off
}

func (r *SliceReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > len(r.b)-r.off {
		return nil, fmt.Errorf("%w: out of bounds read (%d bytes at %d, len=%d)", ErrCorrupt, n, r.off, len(r.b))
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *SliceReader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *SliceReader) ReadFloat64() (float64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadCount reads a uint32 element count and checks that count elements of
// at least minSize bytes each fit in the unread input.
func (r *SliceReader) ReadCount(minSize int) (int, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minSize) > uint64(r.Len()) {
		return 0, fmt.Errorf("%w: %d elements do not fit in %d bytes", ErrCorrupt, n, r.Len())
	}
	return int(n), nil
}

func (r *SliceReader) ReadUint32Slice(n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	bb, err := r.ReadBytes(n * 4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(bb[i*4:])
	}
	return out, nil
}

// ReadFileHeader reads and validates the snapshot header.
func (r *SliceReader) ReadFileHeader() (*FileHeader, error) {
	b, err := r.ReadBytes(headerSize)
	if err != nil {
		return nil, err
	}
	h := &FileHeader{
		Magic:       binary.LittleEndian.Uint32(b[0:]),
		Version:     binary.LittleEndian.Uint32(b[4:]),
		Compression: Compression(b[8]),
		Level:       int32(binary.LittleEndian.Uint32(b[12:])),
		RawSize:     binary.LittleEndian.Uint64(b[16:]),
		StoredSize:  binary.LittleEndian.Uint64(b[24:]),
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}
