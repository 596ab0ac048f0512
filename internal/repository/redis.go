package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pawcare/internal/config"
	"pawcare/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (r *RedisSessionRepository) GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, snapshotKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap models.SessionSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

func (r *RedisSessionRepository) SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, snapshotKey(snapshot.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rk := fmt.Sprintf("rate_limit:%s", key)
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

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
