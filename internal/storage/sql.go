package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// RecommendedVideo is one stored recommendation row.
type RecommendedVideo struct {
	VideoID   string `gorm:"primaryKey;size:32"`
	CreatedAt time.Time
}

// SQLStore keeps recommendations in a SQLite database through gorm.
type SQLStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewSQL opens (and migrates) the database at dsn.
func NewSQL(dsn string, logger zerolog.Logger) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite storage requires a DSN")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RecommendedVideo{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("dsn", dsn).Msg("sqlite storage ready")
	return &SQLStore{db: db, logger: logger}, nil
}

func (s *SQLStore) SaveVideoIDs(ctx context.Context, ids ...string) error {
	rows := make([]RecommendedVideo, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			rows = append(rows, RecommendedVideo{VideoID: id})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save recommendations: %w", err)
	}
	return nil
}

func (s *SQLStore) RandomVideoID(ctx context.Context) (string, error) {
	var row RecommendedVideo
	err := s.db.WithContext(ctx).Order("RANDOM()").Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("sample recommendation: %w", err)
	}
	return row.VideoID, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
