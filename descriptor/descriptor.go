// Package descriptor holds local feature descriptors and the frame/keyframe
// views the retriever consumes.
//
// Descriptors are stored row-major as float32 regardless of their element
// Type; Type only records what the extractor produced (e.g. ORB bytes) so it
// can be checked against the vocabulary.
package descriptor

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bowgo/bow"
)

// Type is the element type a descriptor extractor produced.
type Type uint8

const (
	// TypeFloat32 covers real-valued descriptors such as SIFT or SURF.
	TypeFloat32 Type = iota
	// TypeUint8 covers byte descriptors such as ORB, AKAZE or FREAK.
	TypeUint8
)

func (t Type) String() string {
	switch t {
	case TypeFloat32:
		return "float32"
	case TypeUint8:
		return "uint8"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

var (
	// ErrInvalidWidth is returned when a buffer's data length is not a multiple of its width.
	ErrInvalidWidth = errors.New("descriptor: data length is not a multiple of width")

	// ErrIndexOutOfRange is returned when a descriptor index is outside the buffer.
	ErrIndexOutOfRange = errors.New("descriptor: index out of range")
)

// Buffer is a count x width descriptor matrix.
type Buffer struct {
	typ   Type
	width int
	data  []float32
}

// NewBuffer wraps data as a matrix of descriptors of the given width.
// The slice is not copied.
func NewBuffer(typ Type, width int, data []float32) (*Buffer, error) {
	if width <= 0 || len(data)%width != 0 {
		return nil, fmt.Errorf("%w: len=%d width=%d", ErrInvalidWidth, len(data), width)
	}
	return &Buffer{typ: typ, width: width, data: data}, nil
}

// FromRows builds a Buffer by copying equally sized rows.
func FromRows(typ Type, rows [][]float32) (*Buffer, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidWidth)
	}
	width := len(rows[0])
	data := make([]float32, 0, width*len(rows))
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("%w: row %d has %d elements, want %d", ErrInvalidWidth, i, len(r), width)
		}
		data = append(data, r...)
	}
	return NewBuffer(typ, width, data)
}

// Type returns the element type.
func (b *Buffer) Type() Type { return b.typ }

// Width returns the number of elements per descriptor.
func (b *Buffer) Width() int { return b.width }

// Len returns the number of descriptors. A nil buffer is empty.
func (b *Buffer) Len() int {
	if b == nil || b.width == 0 {
		return 0
	}
	return len(b.data) / b.width
}

// Row returns descriptor i without copying.
func (b *Buffer) Row(i int) []float32 {
	return b.data[i*b.width : (i+1)*b.width]
}

// Data returns the backing slice.
func (b *Buffer) Data() []float32 { return b.data }

// Select copies the descriptors at the given indices into a new buffer.
func (b *Buffer) Select(indices []int) (*Buffer, error) {
	data := make([]float32, 0, len(indices)*b.width)
	for _, i := range indices {
		if i < 0 || i >= b.Len() {
			return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, b.Len())
		}
		data = append(data, b.Row(i)...)
	}
	return &Buffer{typ: b.typ, width: b.width, data: data}, nil
}

// Frame is a query image reduced to its descriptors.
type Frame struct {
	Descriptors *Buffer
}

// NewFrame creates a frame over d.
func NewFrame(d *Buffer) *Frame {
	return &Frame{Descriptors: d}
}

// Keyframe is a reference image with a stable id.
//
// Matched optionally flags descriptors that were confirmed by matching
// elsewhere (e.g. triangulated into map points). When present it must have
// one entry per descriptor.
type Keyframe struct {
	ID          bow.KeyframeID
	Descriptors *Buffer
	Matched     []bool
}

// NewKeyframe creates a keyframe without a matched mask.
func NewKeyframe(id bow.KeyframeID, d *Buffer) *Keyframe {
	return &Keyframe{ID: id, Descriptors: d}
}

// MatchedIndices returns the indices flagged in Matched, in ascending order.
func (k *Keyframe) MatchedIndices() []int {
	out := make([]int, 0, len(k.Matched))
	for i, m := range k.Matched {
		if m && i < k.Descriptors.Len() {
			out = append(out, i)
		}
	}
	return out
}
