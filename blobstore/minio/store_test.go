package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/samepage/blobstore"
)

// TestStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-samepage"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("time, pages_unshared, pages_saved, pages_shared, full_scans\n")
	require.NoError(t, store.Put(ctx, "stats/1.csv", data))

	got, err := store.Get(ctx, "stats/1.csv")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "stats/")
	require.NoError(t, err)
	assert.Contains(t, names, "stats/1.csv")

	require.NoError(t, store.Delete(ctx, "stats/1.csv"))
	_, err = store.Get(ctx, "stats/1.csv")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
