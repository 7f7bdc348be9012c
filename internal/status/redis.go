package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/csv-transformer/backend/internal/models"
)

const keyPrefix = "file_status:"

// RedisStore keeps status records in a Redis hash per file id, so
// multiple backend instances observe the same processing state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store. A missing hash reports ok=false.
func (s *RedisStore) Get(ctx context.Context, fileID string) (Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+fileID).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("reading status for %s: %w", fileID, err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	rec := Record{Status: models.UploadStatus(fields["status"])}
	if p, err := strconv.Atoi(fields["progress"]); err == nil {
		rec.Progress = p
	}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		rec.UpdatedAt = time.Unix(ts, 0)
	}
	return rec, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, fileID string, st models.UploadStatus, progress int) error {
	err := s.client.HSet(ctx, keyPrefix+fileID, map[string]any{
		"status":     string(st),
		"progress":   progress,
		"updated_at": time.Now().Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("writing status for %s: %w", fileID, err)
	}
	return nil
}
