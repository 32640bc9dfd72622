package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arunvm123/campsite/cache"
	"github.com/arunvm123/campsite/calendar"
	"github.com/redis/go-redis/v9"
)

// addIfPopulated only extends a set that already exists, so a write on a
// cold cache cannot make a partial set look complete.
var addIfPopulated = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('SADD', KEYS[1], unpack(ARGV))
end
return -1
`)

type RedisDateCache struct {
	client *redis.Client
	key    string
	log    *slog.Logger
}

func NewRedisDateCache(redisURL, password string, db int, key string, log *slog.Logger) (*RedisDateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: password,
		DB:       db,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisDateCacheFromClient(client, key, log), nil
}

func NewRedisDateCacheFromClient(client *redis.Client, key string, log *slog.Logger) *RedisDateCache {
	return &RedisDateCache{
		client: client,
		key:    key,
		log:    log.With("component", "redis_date_cache", "key", key),
	}
}

// GetAll retrieves the cached booked days
func (r *RedisDateCache) GetAll(ctx context.Context) (calendar.Set, bool) {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		r.log.Warn("failed to read booked dates from cache", "error", err)
		return calendar.Set{}, false
	}

	populated := false
	dates := make(calendar.Set, len(members))
	for _, m := range members {
		if m == cache.PopulatedMarker {
			populated = true
			continue
		}
		d, err := calendar.Parse(m)
		if err != nil {
			r.log.Warn("skipping unparseable cache member", "member", m, "error", err)
			continue
		}
		dates.Add(d)
	}

	if !populated {
		return calendar.Set{}, false
	}
	return dates, true
}

// Add stores booked days if the cache has been filled
func (r *RedisDateCache) Add(ctx context.Context, dates []time.Time) {
	if len(dates) == 0 {
		return
	}

	if err := addIfPopulated.Run(ctx, r.client, []string{r.key}, members(dates)...).Err(); err != nil {
		r.log.Warn("failed to add dates to cache", "dates", len(dates), "error", err)
	}
}

// Remove drops booked days from the cache
func (r *RedisDateCache) Remove(ctx context.Context, dates []time.Time) {
	if len(dates) == 0 {
		return
	}

	if err := r.client.SRem(ctx, r.key, members(dates)...).Err(); err != nil {
		r.log.Warn("failed to remove dates from cache", "dates", len(dates), "error", err)
	}
}

func (r *RedisDateCache) Replace(ctx context.Context, newDates, oldDates []time.Time) {
	r.Remove(ctx, oldDates)
	r.Add(ctx, newDates)
}

// Fill populates the cache unconditionally
func (r *RedisDateCache) Fill(ctx context.Context, dates []time.Time) {
	values := append(members(dates), cache.PopulatedMarker)
	if err := r.client.SAdd(ctx, r.key, values...).Err(); err != nil {
		r.log.Warn("failed to fill cache", "dates", len(dates), "error", err)
	}
}

// Clear invalidates the whole set
func (r *RedisDateCache) Clear(ctx context.Context) {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		r.log.Warn("failed to clear cache", "error", err)
	}
}

// Ping checks if Redis is healthy
func (r *RedisDateCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func members(dates []time.Time) []interface{} {
	out := make([]interface{}, len(dates))
	for i, d := range dates {
		out[i] = calendar.Format(d)
	}
	return out
}

var _ cache.DateCache = (*RedisDateCache)(nil)
