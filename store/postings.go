package store

import (
	"io"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bowgo/bow"
)

// Postings is the set of keyframes containing one word.
// It wraps a 32-bit roaring bitmap.
type Postings struct {
	rb *roaring.Bitmap
}

// NewPostings creates an empty posting set.
func NewPostings(ids ...bow.KeyframeID) *Postings {
	p := &Postings{rb: roaring.New()}
	for _, id := range ids {
		p.rb.Add(uint32(id))
	}
	return p
}

// Add inserts id.
func (p *Postings) Add(id bow.KeyframeID) {
	p.rb.Add(uint32(id))
}

// Remove deletes id.
func (p *Postings) Remove(id bow.KeyframeID) {
	p.rb.Remove(uint32(id))
}

// Contains reports whether id is in the set.
func (p *Postings) Contains(id bow.KeyframeID) bool {
	return p.rb.Contains(uint32(id))
}

// IsEmpty returns true if the set is empty.
func (p *Postings) IsEmpty() bool {
	return p.rb.IsEmpty()
}

// Cardinality returns the number of keyframes in the set.
func (p *Postings) Cardinality() uint64 {
	return p.rb.GetCardinality()
}

// Clone returns a deep copy.
func (p *Postings) Clone() *Postings {
	return &Postings{rb: p.rb.Clone()}
}

// IDs returns the keyframe ids in ascending order.
func (p *Postings) IDs() []bow.KeyframeID {
	out := make([]bow.KeyframeID, 0, p.rb.GetCardinality())
	for id := range p.All() {
		out = append(out, id)
	}
	return out
}

// All iterates the set in ascending order.
func (p *Postings) All() iter.Seq[bow.KeyframeID] {
	return func(yield func(bow.KeyframeID) bool) {
		it := p.rb.Iterator()
		for it.HasNext() {
			if !yield(bow.KeyframeID(it.Next())) {
				return
			}
		}
	}
}

// WriteTo writes the run-optimized portable roaring serialization of the
// set. The set itself is left untouched so that unlocked readers may iterate
// it while a snapshot is written.
func (p *Postings) WriteTo(w io.Writer) (int64, error) {
	rb := p.rb.Clone()
	rb.RunOptimize()
	return rb.WriteTo(w)
}

// UnmarshalBinary replaces the set with a portable roaring serialization.
// The data is copied.
func (p *Postings) UnmarshalBinary(data []byte) error {
	if p.rb == nil {
		p.rb = roaring.New()
	}
	return p.rb.UnmarshalBinary(data)
}
