package services

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ImageStore signe les URLs des images produits stockées dans MinIO.
type ImageStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewImageStore retourne nil si client est nil (MinIO non configuré).
func NewImageStore(client *minio.Client, bucket string, expiry time.Duration) *ImageStore {
	if client == nil {
		return nil
	}
	return &ImageStore{client: client, bucket: bucket, expiry: expiry}
}

// ImageURL génère une URL signée pour la clé. Une URL absolue est renvoyée telle quelle.
// Retourne "" si la signature échoue : l'image est facultative.
func (s *ImageStore) ImageURL(ctx context.Context, key string) string {
	if s == nil || key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, strings.TrimPrefix(key, "/"), s.expiry, make(url.Values))
	if err != nil {
		log.Printf("⚠️ URL signée impossible pour %s: %v", key, err)
		return ""
	}
	return u.String()
}
