package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

// setReader is the part of the redis client the sync state repository needs.
type setReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// SyncStateRepository snapshots the two program sets maintained by the download subsystem.
type SyncStateRepository struct {
	client         setReader
	downloadingKey string
	downloadedKey  string
}

// NewSyncStateRepository constructs the repository.
func NewSyncStateRepository(client setReader, downloadingKey, downloadedKey string) *SyncStateRepository {
	return &SyncStateRepository{client: client, downloadingKey: downloadingKey, downloadedKey: downloadedKey}
}

// Snapshot reads both sets. The result is a copy and never changes afterwards.
func (r *SyncStateRepository) Snapshot(ctx context.Context) (models.SyncStateSnapshot, error) {
	if r.client == nil {
		return models.NewSyncStateSnapshot(nil, nil), nil
	}
	downloading, err := r.client.SMembers(ctx, r.downloadingKey).Result()
	if err != nil {
		return models.SyncStateSnapshot{}, fmt.Errorf("redis smembers %s: %w", r.downloadingKey, err)
	}
	downloaded, err := r.client.SMembers(ctx, r.downloadedKey).Result()
	if err != nil {
		return models.SyncStateSnapshot{}, fmt.Errorf("redis smembers %s: %w", r.downloadedKey, err)
	}
	return models.NewSyncStateSnapshot(downloading, downloaded), nil
}
