package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-registration/internal/models"
)

const (
	// UserCacheKeyPrefix namespaces resolved users by normalized external id.
	UserCacheKeyPrefix  = "auth_user:"
	DefaultUserCacheTTL = 10 * time.Minute
)

// RedisUserCache keeps resolved users so that each request does not hit the
// users table.
type RedisUserCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisUserCache(client *redis.Client, ttl time.Duration) *RedisUserCache {
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	return &RedisUserCache{Client: client, TTL: ttl}
}

// Get returns nil, nil on a miss.
func (c *RedisUserCache) Get(ctx context.Context, externalID string) (*models.User, error) {
	if c == nil || c.Client == nil {
		return nil, nil
	}
	raw, err := c.Client.Get(ctx, UserCacheKeyPrefix+models.NormalizeExternalID(externalID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode cached user: %w", err)
	}
	return &user, nil
}

func (c *RedisUserCache) Set(ctx context.Context, user *models.User) error {
	if c == nil || c.Client == nil {
		return nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return c.Client.Set(ctx, UserCacheKeyPrefix+user.ExternalID, data, c.TTL).Err()
}
