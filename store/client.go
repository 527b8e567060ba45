package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cur1osus/manager-for-userbot/types"
)

// KeyPrefix namespaces every key this project writes to Redis.
const KeyPrefix = "manager_for_userbot"

var ErrNotInteger = errors.New("value is not an integer")

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisClientFromConn(rdb), nil
}

func NewRedisClientFromConn(rdb *redis.Client) *RedisClient {
	return &RedisClient{client: rdb, prefix: KeyPrefix}
}

func (r *RedisClient) Key(parts ...string) string {
	return strings.Join(append([]string{r.prefix}, parts...), ":")
}

func (r *RedisClient) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON returns types.ErrNotFound when the key is absent.
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", types.ErrNotFound, key)
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetInt64 reports ok=false when the key is absent.
func (r *RedisClient) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: key %s holds %q", ErrNotInteger, key, raw)
	}
	return v, true, nil
}

func (r *RedisClient) SetInt64(ctx context.Context, key string, v int64) error {
	return r.client.Set(ctx, key, v, 0).Err()
}

var setMaxScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local nv = tonumber(ARGV[1])
if cur == false or tonumber(cur) == nil or tonumber(cur) < nv then
  redis.call('SET', KEYS[1], ARGV[1])
  return nv
end
return tonumber(cur)
`)

// SetMax stores v unless the key already holds a larger integer and returns
// the value held afterwards.
func (r *RedisClient) SetMax(ctx context.Context, key string, v int64) (int64, error) {
	return setMaxScript.Run(ctx, r.client, []string{key}, v).Int64()
}

func (r *RedisClient) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	return count > 0, err
}

func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
