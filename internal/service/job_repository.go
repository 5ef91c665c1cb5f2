package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/quizgen/internal/model"
)

// jobTTL bounds how long job records and cancel counters live in redis
const jobTTL = 24 * time.Hour

// JobRepository persists job records and their cancel counters
type JobRepository interface {
	Save(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// RequestCancel registers one cancel request and returns the running total
	RequestCancel(ctx context.Context, jobID string) (int64, error)
	CancelRequests(ctx context.Context, jobID string) (int64, error)
}

// RedisJobRepository stores jobs under job:<id> and cancel requests under job:<id>:cancel
type RedisJobRepository struct {
	redis *redis.Client
}

func NewRedisJobRepository(redisClient *redis.Client) *RedisJobRepository {
	return &RedisJobRepository{redis: redisClient}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func cancelKey(jobID string) string {
	return fmt.Sprintf("job:%s:cancel", jobID)
}

func (r *RedisJobRepository) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (r *RedisJobRepository) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := r.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *RedisJobRepository) RequestCancel(ctx context.Context, jobID string) (int64, error) {
	pipe := r.redis.TxPipeline()
	incr := pipe.Incr(ctx, cancelKey(jobID))
	pipe.Expire(ctx, cancelKey(jobID), jobTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisJobRepository) CancelRequests(ctx context.Context, jobID string) (int64, error) {
	n, err := r.redis.Get(ctx, cancelKey(jobID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// MemoryJobRepository keeps jobs in process, for development and tests
type MemoryJobRepository struct {
	mu      sync.Mutex
	jobs    map[string][]byte
	cancels map[string]int64
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:    make(map[string][]byte),
		cancels: make(map[string]int64),
	}
}

func (m *MemoryJobRepository) Save(_ context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = data
	return nil
}

func (m *MemoryJobRepository) Get(_ context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	data, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (m *MemoryJobRepository) RequestCancel(_ context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[jobID]++
	return m.cancels[jobID], nil
}

func (m *MemoryJobRepository) CancelRequests(_ context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels[jobID], nil
}
