package vocabulary

import (
	"fmt"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/distance"
)

// Normalization selects how histogram weights are scaled after transform.
type Normalization uint8

const (
	// NormL2 scales histograms to unit Euclidean norm (matches distance.BoWL2).
	NormL2 Normalization = iota
	// NormL1 scales histograms to unit sum (matches the L1, chi-square,
	// Bhattacharyya and KL metrics).
	NormL1
	// NormNone leaves raw accumulated weights.
	NormNone
)

func (n Normalization) String() string {
	switch n {
	case NormL2:
		return "L2"
	case NormL1:
		return "L1"
	case NormNone:
		return "None"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(n))
	}
}

// Root is the id of the tree root. It has no centroid and is never a word.
const Root = 0

type node struct {
	parent   int32
	depth    int32
	weight   float64
	centroid []float32
	children []int32
}

// Tree is an immutable hierarchical vocabulary.
// Word ids are node ids, assigned in insertion order by Builder.
type Tree struct {
	typ   descriptor.Type
	size  int
	norm  Normalization
	nodes []node
	depth int
}

var _ Vocabulary = (*Tree)(nil)

// DescriptorType implements Vocabulary.
func (t *Tree) DescriptorType() descriptor.Type { return t.typ }

// DescriptorSize implements Vocabulary.
func (t *Tree) DescriptorSize() int { return t.size }

// IsValid implements Vocabulary.
func (t *Tree) IsValid() bool {
	return t != nil && len(t.nodes) > 1 && t.size > 0
}

// Normalization returns the weight normalization applied by Transform.
func (t *Tree) Normalization() Normalization { return t.norm }

// Depth returns the number of levels below the root.
func (t *Tree) Depth() int { return t.depth }

// Size returns the number of nodes, root included.
func (t *Tree) Size() int { return len(t.nodes) }

// Leaves returns the number of words at the bottom of the tree.
func (t *Tree) Leaves() int {
	n := 0
	for i := 1; i < len(t.nodes); i++ {
		if len(t.nodes[i].children) == 0 {
			n++
		}
	}
	return n
}

// descend walks desc from the root to a leaf. It returns the leaf and the
// node crossed at level (the leaf itself when the branch is shallower).
func (t *Tree) descend(desc []float32, level int) (leaf, atLevel int32) {
	cur := int32(Root)
	atLevel = -1
	for {
		children := t.nodes[cur].children
		if len(children) == 0 {
			break
		}
		best, bestDist := children[0], distance.SquaredL2(desc, t.nodes[children[0]].centroid)
		for _, c := range children[1:] {
			if d := distance.SquaredL2(desc, t.nodes[c].centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		cur = best
		if int(t.nodes[cur].depth) == level {
			atLevel = cur
		}
	}
	if atLevel < 0 {
		atLevel = cur
	}
	return cur, atLevel
}

func (t *Tree) check(d *descriptor.Buffer) error {
	if !t.IsValid() {
		return ErrInvalidVocabulary
	}
	return Check(t, d)
}

func (t *Tree) normalize(f bow.Feature) {
	switch t.norm {
	case NormL1:
		f.NormalizeL1()
	case NormL2:
		f.NormalizeL2()
	}
}

// Transform implements Vocabulary.
func (t *Tree) Transform(d *descriptor.Buffer) (bow.Feature, error) {
	if err := t.check(d); err != nil {
		return nil, err
	}
	weights := make(map[bow.WordID]float64)
	for i := 0; i < d.Len(); i++ {
		leaf, _ := t.descend(d.Row(i), 0)
		weights[bow.WordID(leaf)] += t.nodes[leaf].weight
	}
	f := bow.NewFeature(weights)
	t.normalize(f)
	return f, nil
}

// TransformLevel implements Vocabulary.
func (t *Tree) TransformLevel(d *descriptor.Buffer, level int) (bow.Feature, bow.LevelFeature, error) {
	if level < 1 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if err := t.check(d); err != nil {
		return nil, nil, err
	}
	weights := make(map[bow.WordID]float64)
	groups := make(map[bow.WordID][]uint32)
	for i := 0; i < d.Len(); i++ {
		leaf, at := t.descend(d.Row(i), level)
		weights[bow.WordID(leaf)] += t.nodes[leaf].weight
		groups[bow.WordID(at)] = append(groups[bow.WordID(at)], uint32(i))
	}
	f := bow.NewFeature(weights)
	t.normalize(f)
	return f, bow.NewLevelFeature(groups), nil
}

// WordAt implements Vocabulary.
func (t *Tree) WordAt(desc []float32, level int) (bow.WordID, error) {
	if level < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if !t.IsValid() {
		return 0, ErrInvalidVocabulary
	}
	if len(desc) != t.size {
		return 0, &MismatchError{WantType: t.typ, GotType: t.typ, WantSize: t.size, GotSize: len(desc)}
	}
	_, at := t.descend(desc, level)
	return bow.WordID(at), nil
}

// Builder assembles a Tree from known centroids.
type Builder struct {
	typ   descriptor.Type
	size  int
	norm  Normalization
	nodes []node
	err   error
}

// NewBuilder starts a tree for descriptors of the given type and width.
func NewBuilder(typ descriptor.Type, size int) *Builder {
	return &Builder{
		typ:   typ,
		size:  size,
		norm:  NormL2,
		nodes: []node{{parent: -1}},
	}
}

// Normalization sets the weight normalization of the built tree.
func (b *Builder) Normalization(n Normalization) *Builder {
	b.norm = n
	return b
}

// Add appends a node under parent and returns its id.
// A weight <= 0 defaults to 1. Errors are sticky and reported by Build.
func (b *Builder) Add(parent int, centroid []float32, weight float64) int {
	if b.err != nil {
		return -1
	}
	if parent < 0 || parent >= len(b.nodes) {
		b.err = fmt.Errorf("%w: unknown parent %d", ErrInvalidVocabulary, parent)
		return -1
	}
	if len(centroid) != b.size {
		b.err = fmt.Errorf("%w: centroid has %d elements, want %d", ErrInvalidVocabulary, len(centroid), b.size)
		return -1
	}
	if weight <= 0 {
		weight = 1
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{
		parent:   int32(parent),
		depth:    b.nodes[parent].depth + 1,
		weight:   weight,
		centroid: append([]float32(nil), centroid...),
	})
	b.nodes[parent].children = append(b.nodes[parent].children, int32(id))
	return id
}

// Build returns the tree.
func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.size <= 0 {
		return nil, fmt.Errorf("%w: descriptor size %d", ErrInvalidVocabulary, b.size)
	}
	if len(b.nodes) < 2 {
		return nil, fmt.Errorf("%w: tree has no words", ErrInvalidVocabulary)
	}
	t := &Tree{typ: b.typ, size: b.size, norm: b.norm, nodes: b.nodes}
	for _, n := range t.nodes {
		if int(n.depth) > t.depth {
			t.depth = int(n.depth)
		}
	}
	b.nodes = nil
	b.err = fmt.Errorf("%w: builder already used", ErrInvalidVocabulary)
	return t, nil
}
