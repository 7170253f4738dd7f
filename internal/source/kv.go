// ABOUTME: Key-value store contract used by the brain and Markov readers
// ABOUTME: Implemented over go-redis; tests use miniredis or an in-memory fake
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by Get when the key does not exist
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the subset of the key-value API the readers need
type KeyValueStore interface {
	// Get returns the serialized value stored at key
	Get(ctx context.Context, key string) (string, error)
	// Scan returns one page of keys matching the glob and the next cursor.
	// A returned cursor of 0 means the scan is complete.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	// HGetAll returns every field of the hash at key
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisStore adapts a go-redis client to KeyValueStore
type RedisStore struct {
	client redis.UniversalClient
}

var _ KeyValueStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis builds a client from a redis:// URL. Only the host, port,
// credentials and database number of the URL are used.
func DialRedis(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	return val, err
}

func (s *RedisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return s.client.Scan(ctx, cursor, match, count).Result()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}
