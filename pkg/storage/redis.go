package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis, enabling multi-instance servers to
// share run records with TTL-based expiration.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns a store. A zero ttl defaults
// to 30 minutes.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("storage: redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("storage: redis database number must be >= 0")
	}
	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("storage: connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func runKey(name string) string { return "edm:run:" + name }

// Put stores the record as JSON under edm:run:<name> with the configured
// TTL.
func (r *RedisStore) Put(ctx context.Context, rec RunRecord) error {
	if rec.Name == "" {
		return errors.New("storage: run name cannot be empty")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal run record: %w", err)
	}
	if err := r.client.Set(ctx, runKey(rec.Name), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("storage: store run record: %w", err)
	}
	return nil
}

// GetLatest fetches the record for name; found is false when the key is
// absent or expired.
func (r *RedisStore) GetLatest(ctx context.Context, name string) (RunRecord, bool, error) {
	if name == "" {
		return RunRecord{}, false, errors.New("storage: run name required")
	}

	data, err := r.client.Get(ctx, runKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, fmt.Errorf("storage: get run record: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RunRecord{}, false, fmt.Errorf("storage: unmarshal run record: %w", err)
	}
	return rec, true, nil
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
