// Package bow defines the bag-of-words data model shared by the retrieval
// store, the scorer and the matcher.
//
// # Types
//
//   - Feature: sparse word -> weight histogram, ascending by word id.
//   - LevelFeature: word-at-level -> local descriptor indices, ascending by word id.
//   - Match: a (query index, keyframe index, distance) correspondence.
//
// Both Feature and LevelFeature are plain sorted slices. Sorting is what makes
// the two-pointer merge scan of the scorer and the binary-search lookup of the
// matcher possible, so every constructor in this package enforces it.
package bow
