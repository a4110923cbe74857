package verifications

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "verification:"

// RedisRepository keeps each record in a hash that expires after ttl.
// A record older than a few code intervals can never validate, so letting
// redis drop it changes no outcome.
type RedisRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisRepository(client redis.UniversalClient, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, ttl: ttl}
}

func (r *RedisRepository) Get(ctx context.Context, phone string) (*models.Verification, error) {
	fields, err := r.client.HGetAll(ctx, keyPrefix+phone).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("redis error: bad updated_at: %w", err)
	}

	return &models.Verification{
		Phone:     phone,
		Secret:    fields["secret"],
		Token:     fields["token"],
		Code:      fields["code"],
		UpdatedAt: updatedAt,
	}, nil
}

func (r *RedisRepository) Update(ctx context.Context, v *models.Verification) error {
	key := keyPrefix + v.Phone
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"secret", v.Secret,
			"token", v.Token,
			"code", v.Code,
			"updated_at", v.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, keyPrefix+phone).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
