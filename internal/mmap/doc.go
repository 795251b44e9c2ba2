// Package mmap maps vocabulary, descriptor and snapshot files read-only.
//
// Decoders use With, which unmaps as soon as decoding finishes:
//
//	tree, err := mmap.With(path, vocabulary.Decode)
//
// LocalStore keeps a File open for the lifetime of a blob.
package mmap
