package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// DefaultRedisKey is the hash holding the snapshot.
const DefaultRedisKey = "timewarp:params"

const fieldUpdatedAt = "updated_at"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps the snapshot as a Redis hash, one field per parameter.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(rdb, opts.Key), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

// Load reads every parameter field of the hash. Missing fields keep their
// default values.
func (s *RedisStore) Load(ctx context.Context) (timewarp.Params, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil && err != redis.Nil {
		return timewarp.Params{}, false, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return timewarp.Params{}, false, nil
	}

	values, err := decodeFields(fields)
	if err != nil {
		return timewarp.Params{}, false, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return timewarp.DefaultParams().WithValues(values), true, nil
}

// Save writes every parameter field of the hash in one command.
func (s *RedisStore) Save(ctx context.Context, p timewarp.Params) error {
	if err := s.rdb.HSet(ctx, s.key, encodeFields(p, time.Now())).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func encodeFields(p timewarp.Params, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(timewarp.ParamNames())+1)
	for name, v := range p.Values() {
		out[name] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	out[fieldUpdatedAt] = now.Format(time.RFC3339)
	return out
}

func decodeFields(fields map[string]string) (map[string]float64, error) {
	values := make(map[string]float64, len(fields))
	for _, name := range timewarp.ParamNames() {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}

var _ Store = (*RedisStore)(nil)
