package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisRepository keeps each session under its own key. The key expires
// with the refresh token it holds.
type RedisRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisRepository(client redis.UniversalClient, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, ttl: ttl}
}

func (r *RedisRepository) Get(ctx context.Context, userID string) (string, error) {
	token, err := r.client.Get(ctx, keyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("redis error: %w", err)
	}
	return token, nil
}

func (r *RedisRepository) Set(ctx context.Context, userID, refreshToken string) error {
	if err := r.client.Set(ctx, keyPrefix+userID, refreshToken, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
