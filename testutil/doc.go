// Package testutil provides testing utilities for bowgo.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Descriptors
//
//	rng := testutil.NewRNG(seed)
//	rows := rng.GaussianVectors(100, 32)
//	noisy := rng.Near(rows, 0.01)
//
// # Vocabularies
//
// NewVocab builds a deterministic tree whose centroids lie on coordinate axes
// with a scale that shrinks tenfold per level, so a descriptor sampled near a
// leaf centroid always descends to that leaf.
//
//	voc := testutil.NewVocab(16, 4, 2)
//	kf := testutil.Keyframe(7, rng.Near(voc.LeafCentroids(0, 1, 2), 0.01))
package testutil
