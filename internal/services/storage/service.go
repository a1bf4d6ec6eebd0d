// Package storage adapts Supabase object storage to the narrow blob-store
// interface the batch pipeline needs: put bytes under a key, delete a key.
package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/phambaophuc/image-seo/internal/config"
)

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	sbClient    *storage_go.Client
	redisClient *redis.Client
	bucket      string
}

func NewService(cfg *config.Config, redisClient *redis.Client) *Service {
	sbClient := storage_go.NewClient(cfg.Supabase.URL+"/storage/v1", cfg.Supabase.KEY, nil)

	return &Service{
		sbClient:    sbClient,
		redisClient: redisClient,
		bucket:      cfg.Supabase.BUCKET,
	}
}
