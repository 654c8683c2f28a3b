package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// setMaxScript keeps the larger of the stored integer and ARGV[1].
// ARGV[2] is the TTL in milliseconds, 0 for none.
const setMaxScript = `
local cur = tonumber(redis.call("GET", KEYS[1]) or "")
local v = tonumber(ARGV[1])
if cur ~= nil and cur >= v then
  return cur
end
if tonumber(ARGV[2]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return v
`

var setMaxLua = redis.NewScript(setMaxScript)

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key, e.g. "gatekeeper:".
	Prefix string
}

// Redis is a Store backed by go-redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*Redis)(nil)

func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisFromClient(client, opts.Prefix)
}

// NewRedisFromClient wraps an existing client. Close closes the client.
func NewRedisFromClient(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		return "", wrap(err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap(r.client.Set(ctx, r.key(key), value, max(ttl, 0)).Err())
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, max(ttl, 0)).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

func (r *Redis) SetMax(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	n, err := setMaxLua.Run(ctx, r.client, []string{r.key(key)}, value, max(ttl, 0).Milliseconds()).Int64()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return wrap(r.client.Del(ctx, r.key(key)).Err())
}

func (r *Redis) Ping(ctx context.Context) error {
	return wrap(r.client.Ping(ctx).Err())
}

func (r *Redis) Close() error {
	return r.client.Close()
}
