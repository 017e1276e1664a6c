// Package storage persists video IDs discovered by the autoplay related-track
// lookup so later lookups can fall back to a previously seen recommendation.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/datastore"
)

const (
	recommendationsKey = "recommendations"
	recommendationsCap = 5000
)

// ErrEmpty is returned when no recommendation has been stored yet.
var ErrEmpty = errors.New("storage: no recommendations stored")

// RecommendationStore remembers recommendation video IDs.
type RecommendationStore interface {
	SaveVideoIDs(ctx context.Context, ids ...string) error
	RandomVideoID(ctx context.Context) (string, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string // json, sqlite or redis
	Path          string
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// Open builds the configured backend.
func Open(cfg Config, logger zerolog.Logger) (RecommendationStore, error) {
	logger = logger.With().Str("component", "storage").Str("backend", cfg.Backend).Logger()
	switch cfg.Backend {
	case "", "json":
		return New(cfg.Path, logger)
	case "sqlite":
		return NewSQL(cfg.DSN, logger)
	case "redis":
		return NewRedis(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Storage is the JSON file backend built on datastore.
type Storage struct {
	mu sync.Mutex
	ds *datastore.DataStore
}

// Record is the persisted recommendation list.
type Record struct {
	VideoIDs  []string  `json:"video_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(filePath string, logger zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.Logger = logger
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func (s *Storage) getRecord() (*Record, error) {
	data, exists := s.ds.Get(recommendationsKey)
	if !exists {
		return &Record{}, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshalling data: %w", err)
	}

	var record Record
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("error unmarshalling to *Record: %w", err)
	}
	return &record, nil
}

// SaveVideoIDs merges ids into the stored set, keeping the newest entries
// when the cap is reached.
func (s *Storage) SaveVideoIDs(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getRecord()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(record.VideoIDs))
	for _, id := range record.VideoIDs {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		record.VideoIDs = append(record.VideoIDs, id)
	}
	if len(record.VideoIDs) > recommendationsCap {
		record.VideoIDs = record.VideoIDs[len(record.VideoIDs)-recommendationsCap:]
	}
	record.UpdatedAt = time.Now().UTC()

	if err := s.ds.Add(recommendationsKey, record); err != nil {
		return fmt.Errorf("save recommendations: %w", err)
	}
	return nil
}

// RandomVideoID samples one stored id.
func (s *Storage) RandomVideoID(_ context.Context) (string, error) {
	record, err := s.getRecord()
	if err != nil {
		return "", err
	}
	if len(record.VideoIDs) == 0 {
		return "", ErrEmpty
	}
	return record.VideoIDs[rand.IntN(len(record.VideoIDs))], nil
}
