// Package s3 stores snapshots in Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "bowgo/")
//
//	err = retriever.Publish(ctx, store, "snapshots/0001.bow")
//
// Reads use ranged GETs; Create streams through the multipart upload
// manager. DDBCommitStore adds a DynamoDB-backed latest pointer for
// deployments with more than one publisher.
package s3
