package vocabulary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/internal/mmap"
	"github.com/hupe1980/bowgo/persistence"
)

const (
	// fileMagic identifies vocabulary files (ASCII: "BOWV").
	fileMagic   = 0x424F5756
	fileVersion = 1
)

type fileHeader struct {
	Magic   uint32
	Version uint32
	Type    uint8
	Norm    uint8
	_       [2]byte
	Size    uint32
	Nodes   uint32
}

type fileNode struct {
	Parent uint32
	Weight float64
}

// WriteTo serializes the tree followed by a CRC32 of the serialized bytes.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	cw := persistence.NewChecksumWriter(w)
	h := fileHeader{
		Magic:   fileMagic,
		Version: fileVersion,
		Type:    uint8(t.typ),
		Norm:    uint8(t.norm),
		Size:    uint32(t.size),
		Nodes:   uint32(len(t.nodes)),
	}
	if err := binary.Write(cw, binary.LittleEndian, &h); err != nil {
		return 0, err
	}
	n := int64(binary.Size(h))
	for _, nd := range t.nodes[1:] {
		if err := binary.Write(cw, binary.LittleEndian, fileNode{Parent: uint32(nd.parent), Weight: nd.weight}); err != nil {
			return n, err
		}
		if err := binary.Write(cw, binary.LittleEndian, nd.centroid); err != nil {
			return n, err
		}
		n += 12 + 4*int64(len(nd.centroid))
	}
	if err := binary.Write(w, binary.LittleEndian, cw.Sum()); err != nil {
		return n, err
	}
	return n + 4, nil
}

// Save atomically writes the tree to path.
func (t *Tree) Save(path string) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		_, err := t.WriteTo(w)
		return err
	})
}

// Decode parses a serialized tree.
func Decode(data []byte) (*Tree, error) {
	raw := bytes.NewReader(data)
	cr := persistence.NewChecksumReader(raw)

	var h fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidVocabulary, err)
	}
	if h.Magic != fileMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidVocabulary, h.Magic)
	}
	if h.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidVocabulary, h.Version)
	}
	if h.Size == 0 || h.Nodes < 2 {
		return nil, fmt.Errorf("%w: size=%d nodes=%d", ErrInvalidVocabulary, h.Size, h.Nodes)
	}
	// each node needs at least its fixed part and centroid
	if int64(h.Nodes-1) > int64(len(data))/(12+4*int64(h.Size)) {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidVocabulary)
	}

	b := NewBuilder(descriptor.Type(h.Type), int(h.Size)).Normalization(Normalization(h.Norm))
	centroid := make([]float32, h.Size)
	for id := uint32(1); id < h.Nodes; id++ {
		var fn fileNode
		if err := binary.Read(cr, binary.LittleEndian, &fn); err != nil {
			return nil, fmt.Errorf("%w: node %d: %w", ErrInvalidVocabulary, id, err)
		}
		if fn.Parent >= id {
			return nil, fmt.Errorf("%w: node %d has forward parent %d", ErrInvalidVocabulary, id, fn.Parent)
		}
		if err := binary.Read(cr, binary.LittleEndian, centroid); err != nil {
			return nil, fmt.Errorf("%w: node %d: %w", ErrInvalidVocabulary, id, err)
		}
		b.Add(int(fn.Parent), centroid, fn.Weight)
	}

	var sum uint32
	if err := binary.Read(raw, binary.LittleEndian, &sum); err != nil {
		return nil, fmt.Errorf("%w: checksum: %w", ErrInvalidVocabulary, err)
	}
	if err := cr.Verify(sum); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVocabulary, err)
	}
	if raw.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidVocabulary, raw.Len())
	}
	return b.Build()
}

// Load reads a vocabulary file.
func Load(path string) (*Tree, error) {
	t, err := mmap.With(path, Decode)
	if err != nil && !errors.Is(err, ErrInvalidVocabulary) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVocabulary, err)
	}
	return t, err
}
