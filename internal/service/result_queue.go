package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/model"
)

// ErrResultNotFound is returned when no result is stored for a session.
var ErrResultNotFound = errors.New("result not found")

// ResultStore receives submitted results for persistence and keeps a short
// lived copy for sessions that have already left memory.
type ResultStore interface {
	Enqueue(ctx context.Context, r model.ExamResult) error
	Lookup(ctx context.Context, sessionID string) (*model.ExamResult, error)
}

// resultRetention is how long a submitted result stays readable from Redis.
const resultRetention = 24 * time.Hour

// RedisResultQueue pushes results onto the persist queue drained by
// worker.ResultWorker.
type RedisResultQueue struct {
	rdb *redis.Client
}

// NewRedisResultQueue creates a new RedisResultQueue.
func NewRedisResultQueue(rdb *redis.Client) *RedisResultQueue {
	return &RedisResultQueue{rdb: rdb}
}

// Enqueue queues r for the database and caches it under the session key.
func (q *RedisResultQueue) Enqueue(ctx context.Context, r model.ExamResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload)
	pipe.Set(ctx, config.CacheKey.SessionResultKey(r.SessionID.String()), payload, resultRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue result: %w", err)
	}
	return nil
}

// Lookup returns the cached result of a submitted session.
func (q *RedisResultQueue) Lookup(ctx context.Context, sessionID string) (*model.ExamResult, error) {
	data, err := q.rdb.Get(ctx, config.CacheKey.SessionResultKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	var r model.ExamResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// QueueLength reports how many results await persistence.
func (q *RedisResultQueue) QueueLength(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result()
}
