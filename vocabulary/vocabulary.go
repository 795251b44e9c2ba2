// Package vocabulary maps local descriptors to visual words.
//
// Vocabulary is the contract the retriever consumes. Tree implements it with
// a hierarchical k-ary centroid tree: every descriptor descends from the root
// to a leaf by nearest centroid, the leaf is its word, and the node crossed at
// a given depth is its word at that level.
//
// Building the centroids (k-means training) is out of scope; trees are
// assembled from known centroids with Builder or loaded from a file.
package vocabulary

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
)

// Vocabulary turns descriptors into bag-of-words features.
// Implementations must be safe for concurrent use.
type Vocabulary interface {
	// Transform returns the normalized word histogram of d.
	Transform(d *descriptor.Buffer) (bow.Feature, error)

	// TransformLevel returns the histogram of d and, for the given tree level,
	// the indices of the descriptors of d grouped by the word they reach at
	// that level.
	TransformLevel(d *descriptor.Buffer, level int) (bow.Feature, bow.LevelFeature, error)

	// WordAt returns the word a single descriptor reaches at level.
	WordAt(desc []float32, level int) (bow.WordID, error)

	// IsValid reports whether the vocabulary can transform descriptors.
	IsValid() bool

	// DescriptorType is the element type the vocabulary was built for.
	DescriptorType() descriptor.Type

	// DescriptorSize is the descriptor width the vocabulary was built for.
	DescriptorSize() int
}

var (
	// ErrInvalidVocabulary is returned when a vocabulary is empty or cannot be parsed.
	ErrInvalidVocabulary = errors.New("vocabulary: invalid vocabulary")

	// ErrInvalidLevel is returned for levels below 1.
	ErrInvalidLevel = errors.New("vocabulary: level must be >= 1")
)

// MismatchError reports descriptors that do not fit the vocabulary.
type MismatchError struct {
	WantType descriptor.Type
	GotType  descriptor.Type
	WantSize int
	GotSize  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("vocabulary: descriptor mismatch: expected %v[%d], got %v[%d]",
		e.WantType, e.WantSize, e.GotType, e.GotSize)
}

// Check validates d against the type and size contract of v.
func Check(v Vocabulary, d *descriptor.Buffer) error {
	if d == nil {
		return nil
	}
	if d.Type() != v.DescriptorType() || d.Width() != v.DescriptorSize() {
		return &MismatchError{
			WantType: v.DescriptorType(),
			GotType:  d.Type(),
			WantSize: v.DescriptorSize(),
			GotSize:  d.Width(),
		}
	}
	return nil
}
