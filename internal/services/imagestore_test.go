package services

import (
	"context"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageURL(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minio", "minio-secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	store := NewImageStore(client, "products", time.Hour)
	ctx := context.Background()

	u := store.ImageURL(ctx, "/widgets/p1.jpg")
	assert.Contains(t, u, "http://localhost:9000/products/widgets/p1.jpg?")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=3600")

	assert.Equal(t, "https://cdn.test/p1.jpg", store.ImageURL(ctx, "https://cdn.test/p1.jpg"))
	assert.Equal(t, "", store.ImageURL(ctx, ""))
}

func TestNilImageStore(t *testing.T) {
	var store *ImageStore = NewImageStore(nil, "products", time.Hour)
	assert.Nil(t, store)
	assert.Equal(t, "", store.ImageURL(context.Background(), "p1.jpg"))
}
