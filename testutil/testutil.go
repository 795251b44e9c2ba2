package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/vocabulary"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// GaussianVectors generates random vectors with values from a standard normal distribution.
func (r *RNG) GaussianVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
		vectors[i] = vec
	}

	return vectors
}

// Near returns one sample per center with Gaussian noise of the given sigma.
func (r *RNG) Near(centers [][]float32, sigma float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]float32, len(centers))
	for i, c := range centers {
		vec := make([]float32, len(c))
		for j := range c {
			vec[j] = c[j] + float32(r.rand.NormFloat64())*sigma
		}
		out[i] = vec
	}
	return out
}

// Buffer wraps rows in a float32 descriptor buffer. It panics on ragged rows.
func Buffer(rows [][]float32) *descriptor.Buffer {
	b, err := descriptor.FromRows(descriptor.TypeFloat32, rows)
	if err != nil {
		panic(err)
	}
	return b
}

// Keyframe builds a keyframe from rows.
func Keyframe(id bow.KeyframeID, rows [][]float32) *descriptor.Keyframe {
	return descriptor.NewKeyframe(id, Buffer(rows))
}

// Frame builds a query frame from rows.
func Frame(rows [][]float32) *descriptor.Frame {
	return descriptor.NewFrame(Buffer(rows))
}

// Vocab is a vocabulary tree together with the centroids of its leaves.
type Vocab struct {
	*vocabulary.Tree

	leaves    [][]float32
	leafWords []bow.WordID
}

// NewVocab builds a complete tree with the given branching factor and depth
// over descriptors of width dim.
//
// Child j of a node at depth d sits at parent + 100/10^d along axis
// d*branching + j. It panics if dim < branching*depth.
func NewVocab(dim, branching, depth int) *Vocab {
	if dim < branching*depth {
		panic(fmt.Sprintf("testutil: dim %d < branching*depth %d", dim, branching*depth))
	}

	b := vocabulary.NewBuilder(descriptor.TypeFloat32, dim)
	v := &Vocab{}

	type item struct {
		id       int
		centroid []float32
	}
	frontier := []item{{id: vocabulary.Root, centroid: make([]float32, dim)}}
	scale := float32(100)
	for d := 0; d < depth; d++ {
		var next []item
		for _, p := range frontier {
			for j := 0; j < branching; j++ {
				c := append([]float32(nil), p.centroid...)
				c[d*branching+j] += scale
				id := b.Add(p.id, c, 1)
				next = append(next, item{id: id, centroid: c})
			}
		}
		frontier = next
		scale /= 10
	}

	tree, err := b.Build()
	if err != nil {
		panic(err)
	}
	v.Tree = tree
	for _, it := range frontier {
		v.leaves = append(v.leaves, it.centroid)
		v.leafWords = append(v.leafWords, bow.WordID(it.id))
	}
	return v
}

// NumLeaves returns the number of leaves.
func (v *Vocab) NumLeaves() int { return len(v.leaves) }

// LeafCentroids returns copies of the centroids of the given leaves.
func (v *Vocab) LeafCentroids(leaves ...int) [][]float32 {
	out := make([][]float32, len(leaves))
	for i, l := range leaves {
		out[i] = append([]float32(nil), v.leaves[l]...)
	}
	return out
}

// LeafWord returns the word id of leaf i.
func (v *Vocab) LeafWord(i int) bow.WordID { return v.leafWords[i] }
