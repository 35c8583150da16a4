package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// RedisSessionStore persists ready sessions and their cursors in Redis
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// NewRedisSessionStore connects to Redis and verifies the connection
func NewRedisSessionStore(ctx context.Context, cfg RedisConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSessionStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisSessionStoreWithClient wraps an existing client (tests)
func NewRedisSessionStoreWithClient(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "cftracker:session:"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

// Save writes the session record
func (s *RedisSessionStore) Save(ctx context.Context, session models.TrackingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+session.Owner, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session record
func (s *RedisSessionStore) Delete(ctx context.Context, owner string) error {
	return s.client.Del(ctx, s.prefix+owner).Err()
}

// List returns every persisted session. Unreadable records are skipped.
func (s *RedisSessionStore) List(ctx context.Context) ([]models.TrackingSession, error) {
	pattern := s.prefix + "*"
	var cursor uint64
	var sessions []models.TrackingSession

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, key := range keys {
			val, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, fmt.Errorf("failed to read %s: %w", key, err)
			}

			var session models.TrackingSession
			if err := json.Unmarshal(val, &session); err != nil {
				slog.Warn("skipping unreadable session record", "key", key, "error", err)
				continue
			}
			sessions = append(sessions, session)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

// Ping verifies Redis connectivity
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
