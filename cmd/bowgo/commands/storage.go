package commands

import (
	"context"
	"fmt"
	"path"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/bowgo/blobstore"
	bowminio "github.com/hupe1980/bowgo/blobstore/minio"
	bows3 "github.com/hupe1980/bowgo/blobstore/s3"
	"github.com/hupe1980/bowgo/config"
)

// openBlobStore builds the blob store selected by cfg.Storage.Backend.
func openBlobStore(ctx context.Context, cfg config.StorageConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case "local":
		return blobstore.NewLocalStore(cfg.Local.Dir), nil

	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.S3.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		store := bows3.NewStore(awss3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.Prefix)
		if cfg.S3.DynamoDBTable == "" {
			return store, nil
		}
		baseURI := "s3://" + path.Join(cfg.S3.Bucket, cfg.S3.Prefix)
		return bows3.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), cfg.S3.DynamoDBTable, baseURI), nil

	case "minio":
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MinIO client: %w", err)
		}
		return bowminio.NewStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// snapshotName returns a sortable name for a snapshot published at t.
func snapshotName(t time.Time) string {
	return "snapshot-" + t.UTC().Format("20060102T150405.000Z") + ".bow"
}

func newPublishCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [NAME]",
		Short: "Publish the local snapshot to object storage",
		Long: `Upload the local snapshot to the configured object store and point
the latest marker at it. NAME defaults to a timestamped snapshot name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := g.openWithSnapshot(ctx)
			if err != nil {
				return err
			}
			bs, err := openBlobStore(ctx, g.cfg.Storage)
			if err != nil {
				return err
			}

			name := snapshotName(time.Now())
			if len(args) == 1 {
				name = args[0]
			}
			if err := r.Publish(ctx, bs, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%d keyframes)\n", name, r.Stats().Keyframes)
			return nil
		},
	}
}

func newFetchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [NAME]",
		Short: "Fetch a published snapshot into the local snapshot path",
		Long: `Download a snapshot from the configured object store and save it to
the local snapshot path. Without NAME the latest published snapshot is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dst, err := g.snapshotPath()
			if err != nil {
				return err
			}
			r, err := g.open()
			if err != nil {
				return err
			}
			bs, err := openBlobStore(ctx, g.cfg.Storage)
			if err != nil {
				return err
			}

			var name string
			if len(args) == 1 {
				name = args[0]
				err = r.LoadFrom(ctx, bs, name)
			} else {
				name, err = r.LoadLatest(ctx, bs)
			}
			if err != nil {
				return err
			}
			if err := r.SaveToFile(ctx, dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %s (%d keyframes) into %s\n", name, r.Stats().Keyframes, dst)
			return nil
		},
	}
}
