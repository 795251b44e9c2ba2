package testutil

import (
	"testing"

	"github.com/hupe1980/bowgo/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.GaussianVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.GaussianVectors(1, 10)

	rng.Reset()
	v2 := rng.GaussianVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestNear(t *testing.T) {
	rng := NewRNG(1)
	centers := [][]float32{{0, 0, 0}, {10, 10, 10}}

	got := rng.Near(centers, 0.01)
	require.Len(t, got, 2)
	for i := range centers {
		assert.Less(t, distance.L2(centers[i], got[i]), float32(0.1))
	}
}

func TestVocabLeaves(t *testing.T) {
	voc := NewVocab(8, 3, 2)

	assert.Equal(t, 9, voc.NumLeaves())
	assert.Equal(t, 2, voc.Depth())

	rng := NewRNG(7)
	for i := 0; i < voc.NumLeaves(); i++ {
		desc := rng.Near(voc.LeafCentroids(i), 0.01)[0]
		w, err := voc.WordAt(desc, voc.Depth())
		require.NoError(t, err)
		assert.Equal(t, voc.LeafWord(i), w, "leaf %d", i)
	}
}

func TestVocabPanicsOnNarrowDescriptors(t *testing.T) {
	assert.Panics(t, func() { NewVocab(3, 2, 2) })
}
