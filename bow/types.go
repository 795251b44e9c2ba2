package bow

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// WordID identifies a node of the visual vocabulary at some level.
type WordID uint32

// KeyframeID is the caller-assigned identifier of a keyframe.
// It is 32-bit so posting sets can be roaring bitmaps.
type KeyframeID uint32

var (
	// ErrUnsorted is returned when a feature is not strictly ascending by word.
	ErrUnsorted = errors.New("bow: words are not strictly ascending")

	// ErrNonPositiveWeight is returned when a feature holds a zero, negative or NaN weight.
	ErrNonPositiveWeight = errors.New("bow: weight must be positive")
)

// Entry is one (word, weight) pair of a Feature.
type Entry struct {
	Word   WordID
	Weight float64
}

// Feature is a sparse bag-of-words histogram.
// Entries are strictly ascending by Word and carry positive weights.
type Feature []Entry

// NewFeature builds a Feature from a word -> weight map.
// Zero, negative and NaN weights are dropped.
func NewFeature(m map[WordID]float64) Feature {
	f := make(Feature, 0, len(m))
	for w, v := range m {
		if v > 0 {
			f = append(f, Entry{Word: w, Weight: v})
		}
	}
	slices.SortFunc(f, func(a, b Entry) int {
		switch {
		case a.Word < b.Word:
			return -1
		case a.Word > b.Word:
			return 1
		}
		return 0
	})
	return f
}

// Validate checks the ordering and weight invariants.
func (f Feature) Validate() error {
	for i, e := range f {
		if !(e.Weight > 0) {
			return fmt.Errorf("%w: word %d has weight %v", ErrNonPositiveWeight, e.Word, e.Weight)
		}
		if i > 0 && f[i-1].Word >= e.Word {
			return fmt.Errorf("%w: word %d after %d", ErrUnsorted, e.Word, f[i-1].Word)
		}
	}
	return nil
}

// Seek returns the first position p >= from such that f[p].Word >= w,
// or len(f) if there is none.
//
// It gallops forward from `from` before binary searching, so walking a long
// vector with large gaps in word ids costs O(log gap) per jump.
func (f Feature) Seek(from int, w WordID) int {
	n := len(f)
	if from >= n || f[from].Word >= w {
		return from
	}
	lo, step := from, 1
	hi := from + step
	for hi < n && f[hi].Word < w {
		lo = hi
		step <<= 1
		hi = from + step
	}
	if hi > n {
		hi = n
	}
	// f[lo].Word < w and (hi == n or f[hi].Word >= w)
	return lo + 1 + sort.Search(hi-lo-1, func(i int) bool {
		return f[lo+1+i].Word >= w
	})
}

// Get returns the weight of w and whether it is present.
func (f Feature) Get(w WordID) (float64, bool) {
	i := f.Seek(0, w)
	if i < len(f) && f[i].Word == w {
		return f[i].Weight, true
	}
	return 0, false
}

// Sum returns the sum of all weights.
func (f Feature) Sum() float64 {
	var s float64
	for _, e := range f {
		s += e.Weight
	}
	return s
}

// NormalizeL1 scales weights in place so that they sum to 1.
func (f Feature) NormalizeL1() {
	s := f.Sum()
	if s == 0 {
		return
	}
	for i := range f {
		f[i].Weight /= s
	}
}

// NormalizeL2 scales weights in place to unit Euclidean norm.
func (f Feature) NormalizeL2() {
	var s float64
	for _, e := range f {
		s += e.Weight * e.Weight
	}
	if s == 0 {
		return
	}
	inv := 1 / math.Sqrt(s)
	for i := range f {
		f[i].Weight *= inv
	}
}

// Clone returns a deep copy.
func (f Feature) Clone() Feature {
	return slices.Clone(f)
}

// Node is one entry of a LevelFeature: the descriptors of a keyframe that the
// vocabulary assigned to Word at the configured level.
type Node struct {
	Word    WordID
	Indices []uint32
}

// LevelFeature is a per-keyframe inverted index from word-at-level to local
// descriptor indices. Nodes are strictly ascending by Word and never empty.
type LevelFeature []Node

// NewLevelFeature builds a LevelFeature from a word -> indices map.
// Words with no indices are dropped; index order is preserved.
func NewLevelFeature(m map[WordID][]uint32) LevelFeature {
	lf := make(LevelFeature, 0, len(m))
	for w, idx := range m {
		if len(idx) == 0 {
			continue
		}
		lf = append(lf, Node{Word: w, Indices: slices.Clone(idx)})
	}
	slices.SortFunc(lf, func(a, b Node) int {
		switch {
		case a.Word < b.Word:
			return -1
		case a.Word > b.Word:
			return 1
		}
		return 0
	})
	return lf
}

// Validate checks ordering and non-emptiness.
func (lf LevelFeature) Validate() error {
	for i, n := range lf {
		if len(n.Indices) == 0 {
			return fmt.Errorf("bow: word %d has no descriptor indices", n.Word)
		}
		if i > 0 && lf[i-1].Word >= n.Word {
			return fmt.Errorf("%w: word %d after %d", ErrUnsorted, n.Word, lf[i-1].Word)
		}
	}
	return nil
}

// Lookup returns the descriptor indices assigned to w, or nil.
func (lf LevelFeature) Lookup(w WordID) []uint32 {
	i := sort.Search(len(lf), func(i int) bool { return lf[i].Word >= w })
	if i < len(lf) && lf[i].Word == w {
		return lf[i].Indices
	}
	return nil
}

// Words returns the word ids in ascending order.
func (lf LevelFeature) Words() []WordID {
	out := make([]WordID, len(lf))
	for i, n := range lf {
		out[i] = n.Word
	}
	return out
}

// Clone returns a deep copy.
func (lf LevelFeature) Clone() LevelFeature {
	out := make(LevelFeature, len(lf))
	for i, n := range lf {
		out[i] = Node{Word: n.Word, Indices: slices.Clone(n.Indices)}
	}
	return out
}

// Match is an accepted correspondence between a query descriptor and a
// keyframe descriptor.
type Match struct {
	QueryIndex  uint32
	TargetIndex uint32
	Distance    float32
}

// String returns a compact representation of the match.
func (m Match) String() string {
	return fmt.Sprintf("Match(%d->%d, %.4f)", m.QueryIndex, m.TargetIndex, m.Distance)
}
