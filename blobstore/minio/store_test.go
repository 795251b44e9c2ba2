package minio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/hupe1980/bowgo/blobstore"
	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/persistence"
	"github.com/hupe1980/bowgo/store"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	s := NewStore(nil, "bucket", "bowgo/")
	assert.Equal(t, "bowgo/snap-1.bow", s.key("snap-1.bow"))
	assert.Equal(t, "bowgo/"+blobstore.LatestName, s.key(blobstore.LatestName))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "snap-1.bow", bare.key("snap-1.bow"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(io.ErrUnexpectedEOF))
}

// snapshotBytes encodes a small keyframe database the way SaveTo does.
func snapshotBytes(t *testing.T, level int, c persistence.Compression) (*store.Store, []byte) {
	t.Helper()
	s := store.New()
	for i := range 16 {
		id := bow.KeyframeID(100 + i)
		f := bow.NewFeature(map[bow.WordID]float64{
			bow.WordID(i % 5):       1,
			bow.WordID(10 + i%3):    0.5,
			bow.WordID(20 + i*7%11): 0.25,
		})
		f.NormalizeL2()
		lf := bow.NewLevelFeature(map[bow.WordID][]uint32{
			bow.WordID(i % 4): {0, 1},
			bow.WordID(4):     {2},
		})
		require.NoError(t, s.Add(id, f, lf))
	}

	var buf bytes.Buffer
	require.NoError(t, persistence.Encode(&buf, s, level, c))
	return s, buf.Bytes()
}

// Requires a reachable MinIO server; set BOWGO_MINIO_ENDPOINT (and optionally
// BOWGO_MINIO_ACCESS_KEY, BOWGO_MINIO_SECRET_KEY, BOWGO_MINIO_BUCKET).
func TestIntegration_SnapshotRoundTrip(t *testing.T) {
	endpoint := os.Getenv("BOWGO_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping MinIO integration test: BOWGO_MINIO_ENDPOINT not set")
	}
	bucket := envOr("BOWGO_MINIO_BUCKET", "bowgo-test")

	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			envOr("BOWGO_MINIO_ACCESS_KEY", "minioadmin"),
			envOr("BOWGO_MINIO_SECRET_KEY", "minioadmin"),
			"",
		),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	bs := NewStore(client, bucket, fmt.Sprintf("bowgo-%d/", time.Now().UnixNano()))
	t.Cleanup(func() {
		names, _ := bs.List(context.Background(), "")
		for _, n := range names {
			_ = bs.Delete(context.Background(), n)
		}
	})

	t.Run("StreamedSnapshot", func(t *testing.T) {
		want, data := snapshotBytes(t, 2, persistence.CompressionZstd)

		w, err := bs.Create(ctx, "snap-zstd.bow")
		require.NoError(t, err)
		// write in uneven chunks like a streaming encoder would
		for rest := data; len(rest) > 0; {
			n := min(len(rest), 37)
			_, err := w.Write(rest[:n])
			require.NoError(t, err)
			rest = rest[n:]
		}
		require.NoError(t, w.Close())

		got := openSnapshot(ctx, t, bs, "snap-zstd.bow", int64(len(data)))
		assert.Equal(t, 2, got.Level)
		assert.Equal(t, want.IDs(), got.Store.IDs())
		assert.Equal(t, want.Words(), got.Store.Words())
		require.NoError(t, got.Store.CheckInvariants())
	})

	t.Run("PublishAndResolveLatest", func(t *testing.T) {
		want, data := snapshotBytes(t, 1, persistence.CompressionLZ4)
		require.NoError(t, bs.Put(ctx, "snap-lz4.bow", data))
		require.NoError(t, blobstore.WriteLatest(ctx, bs, "snap-lz4.bow"))

		latest, err := blobstore.ReadLatest(ctx, bs)
		require.NoError(t, err)
		require.Equal(t, "snap-lz4.bow", latest)

		got := openSnapshot(ctx, t, bs, latest, int64(len(data)))
		assert.Equal(t, 1, got.Level)
		assert.Equal(t, want.Stats(), got.Store.Stats())

		names, err := bs.List(ctx, "snap-")
		require.NoError(t, err)
		assert.Contains(t, names, "snap-lz4.bow")
		assert.NotContains(t, names, blobstore.LatestName)
	})

	t.Run("HeaderRange", func(t *testing.T) {
		_, data := snapshotBytes(t, 1, persistence.CompressionNone)
		require.NoError(t, bs.Put(ctx, "snap-raw.bow", data))

		b, err := bs.Open(ctx, "snap-raw.bow")
		require.NoError(t, err)
		defer func() { _ = b.Close() }()

		magic := make([]byte, 4)
		_, err = b.ReadAt(ctx, magic, 0)
		require.NoError(t, err)
		assert.Equal(t, uint32(persistence.MagicNumber), binary.LittleEndian.Uint32(magic))

		// trailing CRC32
		rc, err := b.ReadRange(ctx, b.Size()-4, 4)
		require.NoError(t, err)
		tail, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, data[len(data)-4:], tail)
	})

	t.Run("CorruptedUpload", func(t *testing.T) {
		_, data := snapshotBytes(t, 1, persistence.CompressionZstd)
		bad := bytes.Clone(data)
		// last body byte, just before the trailing CRC32
		bad[len(bad)-5] ^= 0xFF
		require.NoError(t, bs.Put(ctx, "snap-bad.bow", bad))

		b, err := bs.Open(ctx, "snap-bad.bow")
		require.NoError(t, err)
		raw, err := blobstore.ReadAll(ctx, b)
		require.NoError(t, err)
		require.NoError(t, b.Close())

		_, err = persistence.Decode(raw)
		assert.ErrorIs(t, err, persistence.ErrCorrupt)
	})

	t.Run("DeleteSnapshot", func(t *testing.T) {
		_, data := snapshotBytes(t, 1, persistence.CompressionNone)
		require.NoError(t, bs.Put(ctx, "snap-old.bow", data))
		require.NoError(t, bs.Delete(ctx, "snap-old.bow"))

		_, err := bs.Open(ctx, "snap-old.bow")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func openSnapshot(ctx context.Context, t *testing.T, bs *Store, name string, size int64) *persistence.Snapshot {
	t.Helper()
	b, err := bs.Open(ctx, name)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	require.Equal(t, size, b.Size())

	raw, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	snap, err := persistence.Decode(raw)
	require.NoError(t, err)
	return snap
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
