package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/mediagrab/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisSessionStore implements SessionStore on Redis so pending offers
// survive restarts and are shared between replicas.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(ctx context.Context, cfg RedisConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisSessionStore(client, cfg.Prefix), nil
}

func newRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(token string) string {
	return s.prefix + token
}

// Put stores sel under token for ttl.
func (s *RedisSessionStore) Put(ctx context.Context, token string, sel *domain.Selection, ttl time.Duration) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Take returns and deletes the selection for token.
func (s *RedisSessionStore) Take(ctx context.Context, token string) (*domain.Selection, error) {
	data, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	var sel domain.Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("unmarshal selection: %w", err)
	}
	return &sel, nil
}

// Sweep is a no-op: Redis expires keys itself.
func (s *RedisSessionStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Ping checks the connection.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
