// Package persistence encodes the retrieval store into a single binary
// snapshot and restores it.
//
// # Layout
//
//	FileHeader (40 bytes, little endian)
//	  Magic "BOW1" | Version | Compression | Level | RawSize | StoredSize
//	body (StoredSize bytes, compressed with Compression)
//	  features:       count, { id, n, { word, weight } * n } * count
//	  level features: count, { id, n, { word, m, index * m } * n } * count
//	  postings:       count, { word, size, roaring bitmap bytes } * count
//	CRC32 (IEEE) of the uncompressed body
//
// Sections are written in ascending id and word order, so encoding the same
// store twice yields identical bytes.
//
// # Files
//
// Save writes through SaveToFile: a temp file in the target directory is
// synced and renamed over the target. Load decodes into a fresh store and
// verifies the checksum and the inverted index invariants before returning,
// so a failed load never exposes a partial store.
package persistence
