// Package blobstore abstracts the object storage snapshots are published to.
//
// BlobStore implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process maps, for tests
//   - LocalStore: a directory on the local file system, reads via mmap
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.DDBCommitStore: s3.Store with the latest pointer kept in DynamoDB
//   - minio.Store: MinIO and other S3-compatible services
//
// # Latest Pointer
//
// Publishers write a snapshot blob under a unique name and then point
// LatestName at it with WriteLatest. Readers resolve the pointer with
// ReadLatest, so a reader never observes a partially written snapshot.
package blobstore
