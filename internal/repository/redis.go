package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gardiens/internal/config"
	"gardiens/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	draftKeyFormat     = "booking_draft:%s"
	rateLimitKeyFormat = "rate_limit:%s"
)

var errNilClient = errors.New("redis client is nil")

type RedisDraftRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewRedisDraftRepository(client *redis.Client, ttl time.Duration) *RedisDraftRepository {
	return &RedisDraftRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisDraftRepository) GetDraft(ctx context.Context, id string) (*models.BookingDraft, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, fmt.Sprintf(draftKeyFormat, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft from redis: %w", err)
	}

	var draft models.BookingDraft
	if err := json.Unmarshal(val, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &draft, nil
}

// SetDraft stores the draft and restarts its TTL.
func (r *RedisDraftRepository) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := r.client.Set(ctx, fmt.Sprintf(draftKeyFormat, draft.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set draft in redis: %w", err)
	}
	return nil
}

func (r *RedisDraftRepository) ClearDraft(ctx context.Context, id string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, fmt.Sprintf(draftKeyFormat, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft from redis: %w", err)
	}
	return nil
}

// CheckRateLimit is a fixed-window counter keyed by client.
func (r *RedisDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	rk := fmt.Sprintf(rateLimitKeyFormat, key)
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, rk, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
