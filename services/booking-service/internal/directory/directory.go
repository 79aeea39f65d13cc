// Package directory answers who users are and whether they are providers.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gobarber/gobarber/services/booking-service/internal/model"
)

type Source interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	IsProvider(ctx context.Context, id string) (bool, error)
}

// Cache is the subset of a redis client used for profile caching.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type cachedUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Provider bool   `json:"provider"`
}

// CachedDirectory caches profiles read through GetUser. IsProvider always
// goes to the source so a revoked provider cannot be booked from a stale entry.
// Cache failures are logged and the source is used instead.
type CachedDirectory struct {
	src    Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(src Source, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{src: src, cache: cache, ttl: ttl, logger: logger.With("component", "directory_cache")}
}

func cacheKey(id string) string {
	return "gobarber:user:" + id
}

func (d *CachedDirectory) GetUser(ctx context.Context, id string) (model.User, error) {
	raw, err := d.cache.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if err := json.Unmarshal(raw, &cu); err == nil {
			return model.User(cu), nil
		}
		d.logger.Warn("discarding corrupt cached user", "user_id", id)
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("user cache read failed", "user_id", id, "err", err)
	}

	u, err := d.src.GetUser(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	payload, err := json.Marshal(cachedUser(u))
	if err == nil {
		if err := d.cache.Set(ctx, cacheKey(id), payload, d.ttl).Err(); err != nil {
			d.logger.Warn("user cache write failed", "user_id", id, "err", err)
		}
	}
	return u, nil
}

func (d *CachedDirectory) IsProvider(ctx context.Context, id string) (bool, error) {
	return d.src.IsProvider(ctx, id)
}

// Forget evicts the cached profile of id so the next read sees an update.
func (d *CachedDirectory) Forget(ctx context.Context, id string) error {
	return d.cache.Del(ctx, cacheKey(id)).Err()
}
