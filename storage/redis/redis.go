// Package redis provides a Redis-backed storage repository, suitable when
// several heist servers share one set of player sessions.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/heist/storage"
)

// addScript registers a flag in the session's set and, only when it was not
// already a member, appends it to the ordered list. Both keys share the
// session TTL.
var addScript = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
if added == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return added
`)

// Repository implements storage.Repository on Redis. Keys are namespaced
// with the configured prefix and expire after ttl of inactivity.
type Repository struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository connects to Redis with the given options.
func NewRepository(opts *redis.Options, prefix string, ttl time.Duration) (*Repository, error) {
	if prefix == "" {
		return nil, fmt.Errorf("key prefix cannot be empty")
	}
	return &Repository{
		rdb:    redis.NewClient(opts),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Close closes the Redis connection.
func (r *Repository) Close() error {
	return r.rdb.Close()
}

// Ping verifies Redis connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Repository) seenKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:seen", r.prefix, sessionID)
}

func (r *Repository) listKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:flags", r.prefix, sessionID)
}

func (r *Repository) Add(ctx context.Context, sessionID, flag string) (bool, error) {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return false, err
	}
	keys := []string{r.seenKey(sessionID), r.listKey(sessionID)}
	added, err := addScript.Run(ctx, r.rdb, keys, flag, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to add flag in Redis: %w", err)
	}
	return added == 1, nil
}

func (r *Repository) List(ctx context.Context, sessionID string) ([]string, error) {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return nil, err
	}
	var lrange *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, r.listKey(sessionID), 0, -1)
		if r.ttl > 0 {
			pipe.PExpire(ctx, r.seenKey(sessionID), r.ttl)
			pipe.PExpire(ctx, r.listKey(sessionID), r.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read flags from Redis: %w", err)
	}
	flags := lrange.Val()
	if flags == nil {
		flags = []string{}
	}
	return flags, nil
}

func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.seenKey(sessionID), r.listKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}
