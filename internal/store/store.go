// Package store persists items, score records, experiment pairs,
// feedback, and author tiers in an embedded SQLite database.
//
// The store also owns the authoritative clock: feedback timestamps and
// the undo grace-window check both read it, so near-simultaneous vote
// and undo requests are ordered by a single time source.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/curator/internal/feed"
)

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file path.
	Path string `koanf:"path"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

// Store wraps the database handle.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// Open opens (or creates) the database and migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating store config: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}

	if err := db.AutoMigrate(
		&Item{},
		&ScoreRecord{},
		&ExperimentPair{},
		&Feedback{},
		&AuthorTier{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Info("store opened", zap.String("path", cfg.Path))
	return &Store{db: db, now: time.Now, logger: logger}, nil
}

// SetClock overrides the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's authoritative current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveItem upserts an item by its source identity.
func (s *Store) SaveItem(ctx context.Context, item *Item) error {
	if item.Fingerprint == "" {
		item.Fingerprint = feed.Item{Text: item.Text}.Fingerprint()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(item).Error
	if err != nil {
		return fmt.Errorf("saving item %s: %w", item.ID, err)
	}
	return nil
}

// ItemByID returns the item or (nil, nil) when absent.
func (s *Store) ItemByID(ctx context.Context, id string) (*Item, error) {
	var item Item
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", id, err)
	}
	return &item, nil
}

// FingerprintSeen reports whether another already-scored item carries the
// same content fingerprint. Used for reshare suppression.
func (s *Store) FingerprintSeen(ctx context.Context, fingerprint, excludeItemID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Item{}).
		Where("fingerprint = ? AND id <> ? AND score IS NOT NULL", fingerprint, excludeItemID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return count > 0, nil
}

// SaveScoreRecord appends one strategy invocation result.
func (s *Store) SaveScoreRecord(ctx context.Context, rec *ScoreRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("saving score record for %s: %w", rec.ItemID, err)
	}
	return nil
}

// ScoreRecordsForItem returns all score records for an item.
func (s *Store) ScoreRecordsForItem(ctx context.Context, itemID string) ([]ScoreRecord, error) {
	var recs []ScoreRecord
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("loading score records for %s: %w", itemID, err)
	}
	return recs, nil
}
