package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"media-transcription-pipeline/internal/models"
)

const jobIndexKey = "jobs"

// RedisJobStore keeps snapshots in Redis.
// Keys: <prefix>job:<id> => JSON(JobSnapshot); sorted set <prefix>jobs
// scored by creation time for listing.
type RedisJobStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisJobStore creates a store. ttl <= 0 keeps snapshots forever.
func NewRedisJobStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient opens a client and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisJobStore) jobKey(id string) string { return r.prefix + "job:" + id }

func (r *RedisJobStore) indexKey() string { return r.prefix + jobIndexKey }

// Save implements JobStore.
func (r *RedisJobStore) Save(ctx context.Context, snap models.JobSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", snap.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.jobKey(snap.ID), b, r.ttl)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(snap.CreatedAt.UnixNano()), Member: snap.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", snap.ID, err)
	}
	return nil
}

// Get implements JobStore.
func (r *RedisJobStore) Get(ctx context.Context, id string) (models.JobSnapshot, error) {
	val, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.JobSnapshot{}, ErrJobNotFound
		}
		return models.JobSnapshot{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var snap models.JobSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return models.JobSnapshot{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return snap, nil
}

// List implements JobStore. Index entries whose snapshot expired are
// dropped from the index.
func (r *RedisJobStore) List(ctx context.Context, limit int) ([]models.JobSnapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]models.JobSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := r.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			r.client.ZRem(ctx, r.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete implements JobStore.
func (r *RedisJobStore) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.jobKey(id))
	pipe.ZRem(ctx, r.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}
