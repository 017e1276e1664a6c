package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultRedisKey = "lavaplayer:recommendations"

// RedisStore keeps recommendations in a Redis set.
type RedisStore struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedis connects to cfg.RedisAddr and verifies the connection.
func NewRedis(cfg Config, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	key := cfg.RedisKey
	if key == "" {
		key = defaultRedisKey
	}
	logger.Info().Str("addr", cfg.RedisAddr).Str("key", key).Msg("redis storage ready")
	return &RedisStore{client: client, key: key, logger: logger}, nil
}

func (s *RedisStore) SaveVideoIDs(ctx context.Context, ids ...string) error {
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("save recommendations: %w", err)
	}
	return nil
}

func (s *RedisStore) RandomVideoID(ctx context.Context) (string, error) {
	id, err := s.client.SRandMember(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("sample recommendation: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
