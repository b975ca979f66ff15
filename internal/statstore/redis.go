package statstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/internal/venue"
)

// RedisStore persists venue statistics snapshots so scores survive a
// restart instead of decaying from defaults.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *logrus.Entry
}

// NewRedisStore connects to Redis using a DSN like
// redis://localhost:6379/0 and pings it once.
func NewRedisStore(ctx context.Context, dsn, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		key:    key,
		logger: logrus.WithField("component", "stats-store"),
	}, nil
}

// Save writes the full stats snapshot as one JSON document
func (s *RedisStore) Save(ctx context.Context, snapshot map[string]venue.Stats) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal stats snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save stats snapshot: %w", err)
	}

	s.logger.WithField("entries", len(snapshot)).Debug("stats snapshot saved")
	return nil
}

// Load reads the last snapshot; a missing key returns an empty map
func (s *RedisStore) Load(ctx context.Context) (map[string]venue.Stats, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]venue.Stats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats snapshot: %w", err)
	}

	var snapshot map[string]venue.Stats
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal stats snapshot: %w", err)
	}

	s.logger.WithField("entries", len(snapshot)).Info("stats snapshot loaded")
	return snapshot, nil
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
