package persistence

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/internal/mmap"
	"github.com/hupe1980/bowgo/store"
)

// Snapshot is a decoded store together with the level it was built at.
type Snapshot struct {
	Level int
	Store *store.Store
}

// Encode writes s and level as a snapshot. The caller must keep s from
// changing for the duration of the call.
func Encode(w io.Writer, s *store.Store, level int, c Compression) error {
	if level < 1 {
		return fmt.Errorf("persistence: invalid level %d", level)
	}

	var body bytes.Buffer
	if err := encodeBody(&body, s); err != nil {
		return err
	}
	raw := body.Bytes()
	sum := Checksum(raw)

	stored, used, err := compress(raw, c)
	if err != nil {
		return fmt.Errorf("persistence: compress %s: %w", c, err)
	}

	bw := NewBinaryWriter(w)
	if err := bw.WriteHeader(&FileHeader{
		Compression: used,
		Level:       int32(level),
		RawSize:     uint64(len(raw)),
		StoredSize:  uint64(len(stored)),
	}); err != nil {
		return err
	}
	bw.WriteBytes(stored)
	bw.WriteUint32(sum)
	return bw.Err()
}

func encodeBody(w io.Writer, s *store.Store) error {
	bw := NewBinaryWriter(w)

	bw.WriteUint32(uint32(s.Len()))
	for id, f := range s.Features() {
		bw.WriteUint32(uint32(id))
		bw.WriteUint32(uint32(len(f)))
		for _, e := range f {
			bw.WriteUint32(uint32(e.Word))
			bw.WriteFloat64(e.Weight)
		}
	}

	bw.WriteUint32(uint32(s.Len()))
	for id, lf := range s.LevelFeatures() {
		bw.WriteUint32(uint32(id))
		bw.WriteUint32(uint32(len(lf)))
		for _, n := range lf {
			bw.WriteUint32(uint32(n.Word))
			bw.WriteUint32(uint32(len(n.Indices)))
			bw.WriteUint32Slice(n.Indices)
		}
	}

	words := s.Words()
	bw.WriteUint32(uint32(len(words)))
	var pb bytes.Buffer
	for w, p := range s.Index() {
		pb.Reset()
		if _, err := p.WriteTo(&pb); err != nil {
			return fmt.Errorf("persistence: postings of word %d: %w", w, err)
		}
		bw.WriteUint32(uint32(w))
		bw.WriteUint32(uint32(pb.Len()))
		bw.WriteBytes(pb.Bytes())
	}
	return bw.Err()
}

// Decode parses a snapshot into a fresh store. The returned store shares no
// memory with data.
func Decode(data []byte) (*Snapshot, error) {
	r := NewSliceReader(data)
	h, err := r.ReadFileHeader()
	if err != nil {
		return nil, err
	}

	if h.StoredSize > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: body truncated", ErrCorrupt)
	}
	stored, err := r.ReadBytes(int(h.StoredSize))
	if err != nil {
		return nil, err
	}
	sum, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}

	raw, err := decompress(stored, h.Compression, h.RawSize)
	if err != nil {
		return nil, err
	}
	if err := VerifyChecksum(raw, sum); err != nil {
		return nil, err
	}

	s, err := decodeBody(NewSliceReader(raw))
	if err != nil {
		return nil, err
	}
	return &Snapshot{Level: int(h.Level), Store: s}, nil
}

func decodeBody(r *SliceReader) (*store.Store, error) {
	// id + count
	n, err := r.ReadCount(8)
	if err != nil {
		return nil, err
	}
	features := make(map[bow.KeyframeID]bow.Feature, n)
	for i := 0; i < n; i++ {
		id, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		// word + weight
		m, err := r.ReadCount(12)
		if err != nil {
			return nil, err
		}
		f := make(bow.Feature, m)
		for j := range f {
			w, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			wt, err := r.ReadFloat64()
			if err != nil {
				return nil, err
			}
			f[j] = bow.Entry{Word: bow.WordID(w), Weight: wt}
		}
		if _, dup := features[bow.KeyframeID(id)]; dup {
			return nil, fmt.Errorf("%w: duplicate feature for keyframe %d", ErrCorrupt, id)
		}
		features[bow.KeyframeID(id)] = f
	}

	n, err = r.ReadCount(8)
	if err != nil {
		return nil, err
	}
	levels := make(map[bow.KeyframeID]bow.LevelFeature, n)
	for i := 0; i < n; i++ {
		id, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		// word + index count
		m, err := r.ReadCount(8)
		if err != nil {
			return nil, err
		}
		lf := make(bow.LevelFeature, m)
		for j := range lf {
			w, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			k, err := r.ReadCount(4)
			if err != nil {
				return nil, err
			}
			idx, err := r.ReadUint32Slice(k)
			if err != nil {
				return nil, err
			}
			lf[j] = bow.Node{Word: bow.WordID(w), Indices: idx}
		}
		if _, dup := levels[bow.KeyframeID(id)]; dup {
			return nil, fmt.Errorf("%w: duplicate level feature for keyframe %d", ErrCorrupt, id)
		}
		levels[bow.KeyframeID(id)] = lf
	}

	n, err = r.ReadCount(8)
	if err != nil {
		return nil, err
	}
	index := make(map[bow.WordID]*store.Postings, n)
	for i := 0; i < n; i++ {
		w, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadCount(1)
		if err != nil {
			return nil, err
		}
		b, err := r.ReadBytes(size)
		if err != nil {
			return nil, err
		}
		p := store.NewPostings()
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("%w: postings of word %d: %w", ErrCorrupt, w, err)
		}
		if _, dup := index[bow.WordID(w)]; dup {
			return nil, fmt.Errorf("%w: duplicate postings for word %d", ErrCorrupt, w)
		}
		index[bow.WordID(w)] = p
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d unread body bytes", ErrCorrupt, r.Len())
	}

	s, err := store.Restore(features, levels, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return s, nil
}

// Read decodes a snapshot from r.
func Read(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save atomically writes a snapshot of s to path.
func Save(path string, s *store.Store, level int, c Compression) error {
	return SaveToFile(path, func(w io.Writer) error {
		return Encode(w, s, level, c)
	})
}

// Load reads the snapshot at path.
func Load(path string) (*Snapshot, error) {
	return mmap.With(path, Decode)
}
