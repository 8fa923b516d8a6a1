package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mentormatch/server/internal/model"
)

// UserCache fronts GetUserByID with a short-TTL Redis cache. The session
// guard resolves the token subject on every request, so this is the hottest
// read in the service. A nil client disables caching entirely.
type UserCache struct {
	store *Store
	redis *redis.Client
	ttl   time.Duration
}

func NewUserCache(store *Store, client *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{store: store, redis: client, ttl: ttl}
}

func (c *UserCache) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	if c.redis == nil {
		return c.store.GetUserByID(ctx, userID)
	}

	key := "user:" + userID
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var user model.User
		if err := json.Unmarshal(raw, &user); err == nil {
			return user, nil
		}
	}

	user, err := c.store.GetUserByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if raw, err := json.Marshal(sanitizeForCache(user)); err == nil {
		// Cache write failures are ignored; the next lookup hits postgres.
		_ = c.redis.Set(ctx, key, raw, c.ttl).Err()
	}
	return user, nil
}

// sanitizeForCache strips the password hash before the record leaves the
// process. The session guard never needs it; only the login path reads the
// hash, and that path queries postgres directly.
func sanitizeForCache(user model.User) model.User {
	user.PasswordHash = ""
	return user
}

// Invalidate drops the cached entry after a profile mutation.
func (c *UserCache) Invalidate(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, "user:"+userID).Err()
}
