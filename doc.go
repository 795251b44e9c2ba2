// Package bowgo provides bag-of-words keyframe retrieval and descriptor
// matching for visual place recognition.
//
// Keyframes are reduced to their descriptors, which a hierarchical
// vocabulary turns into a sparse word histogram and, at a configured tree
// level, a map from word to descriptor indices. The histograms are scored
// against a query; the level words drive an inverted index for candidate
// generation and prune descriptor matching.
//
// # Quick Start
//
//	voc, _ := vocabulary.Load("orb.voc")
//	r, _ := bowgo.New(voc, bowgo.WithLevel(2), bowgo.WithThreshold(0.01))
//
//	_ = r.AddKeyframe(ctx, descriptor.NewKeyframe(1, descs1), false)
//	_ = r.AddKeyframe(ctx, descriptor.NewKeyframe(2, descs2), false)
//
//	ids, err := r.Retrieve(ctx, descriptor.NewFrame(query))
//	if errors.Is(err, bowgo.ErrNoCandidates) {
//	    // nothing shares a word with the query
//	}
//	matches, _ := r.Match(ctx, descriptor.NewFrame(query), kf)
//
// # Concurrency
//
// Mutations lock the store for their own duration. Queries do not lock and
// may observe a mutation half applied; hold Acquire around queries that must
// not interleave with writers.
//
// # Snapshots
//
// SaveToFile and LoadFromFile write and read a checksummed, optionally
// compressed snapshot atomically. SaveTo, LoadFrom, Publish and LoadLatest
// do the same against a blobstore.BlobStore (local directory, memory, S3
// with an optional DynamoDB latest pointer, or MinIO).
//
// # Errors
//
// Every failure wraps one of ErrInvalidConfiguration, ErrEmptyInput,
// ErrNotFound, ErrAlreadyExists, ErrNoCandidates, ErrNoneAboveThreshold or
// ErrIOFailure, or is an *ErrDescriptorMismatch.
package bowgo
