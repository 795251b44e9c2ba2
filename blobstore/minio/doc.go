// Package minio stores snapshots in MinIO or any S3-compatible service
// (Ceph, Garage, SeaweedFS) through the MinIO Go client.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "bowgo/")
//	err = retriever.Publish(ctx, store, "snapshots/0001.bow")
package minio
