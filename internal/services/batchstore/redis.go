package batchstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phambaophuc/image-seo/internal/models"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func metaKey(batchID string) string {
	return "batch:" + batchID
}

func outcomesKey(batchID string) string {
	return "batch:" + batchID + ":outcomes"
}

func (s *RedisStore) AppendOutcome(ctx context.Context, userID, batchID string, constraints models.GenerationConstraints, outcome models.ImageOutcome) error {
	cb, err := json.Marshal(constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal constraints: %w", err)
	}
	ob, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	pipe := s.client.TxPipeline()
	// HSetNX keeps the first write's owner/constraints on regeneration.
	pipe.HSetNX(ctx, metaKey(batchID), "user_id", userID)
	pipe.HSetNX(ctx, metaKey(batchID), "constraints", string(cb))
	pipe.HSetNX(ctx, metaKey(batchID), "created_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.RPush(ctx, outcomesKey(batchID), string(ob))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append batch outcome: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	meta, err := s.client.HGetAll(ctx, metaKey(batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrNotFound
	}

	record := &models.BatchRecord{
		ID:     batchID,
		UserID: meta["user_id"],
	}
	if raw, ok := meta["constraints"]; ok {
		if err := json.Unmarshal([]byte(raw), &record.Constraints); err != nil {
			return nil, fmt.Errorf("corrupt batch constraints: %w", err)
		}
	}
	if raw, ok := meta["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			record.CreatedAt = t
		}
	}

	raws, err := s.client.LRange(ctx, outcomesKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch outcomes: %w", err)
	}
	record.Outcomes = make([]models.ImageOutcome, 0, len(raws))
	for _, r := range raws {
		var o models.ImageOutcome
		if err := json.Unmarshal([]byte(r), &o); err != nil {
			return nil, fmt.Errorf("corrupt batch outcome: %w", err)
		}
		record.Outcomes = append(record.Outcomes, o)
	}

	return record, nil
}

func (s *RedisStore) Count(ctx context.Context, batchID string) (int, error) {
	n, err := s.client.LLen(ctx, outcomesKey(batchID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count batch outcomes: %w", err)
	}
	return int(n), nil
}
