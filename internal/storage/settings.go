package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Setting is one persisted key/value pair. Keys are scoped by category;
// writes are last-write-wins with no transactions across keys.
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Category  string `gorm:"uniqueIndex:idx_settings_category_key;size:64;not null"`
	Key       string `gorm:"uniqueIndex:idx_settings_category_key;size:128;not null"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// SettingsStore persists settings in SQLite through the pure Go driver.
type SettingsStore struct {
	db *gorm.DB
}

// OpenSettings opens (and migrates) the settings database at dsn. The
// WAL and busy-timeout pragmas ride along on the DSN so they apply to
// every pooled connection.
func OpenSettings(dsn string) (*SettingsStore, error) {
	if dsn == "" {
		dsn = "convertd.db"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep +
		"_pragma=busy_timeout(30000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening settings database: %w", err)
	}

	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, fmt.Errorf("migrating settings schema: %w", err)
	}

	return &SettingsStore{db: db}, nil
}

// Get returns the stored value, or ok=false when the key was never set.
func (s *SettingsStore) Get(ctx context.Context, category, key string) (string, bool, error) {
	var setting Setting
	err := s.db.WithContext(ctx).
		Where("category = ? AND key = ?", category, key).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s/%s: %w", category, key, err)
	}
	return setting.Value, true, nil
}

// Set upserts a value. Concurrent writers race last-write-wins.
func (s *SettingsStore) Set(ctx context.Context, category, key, value string) error {
	setting := Setting{
		Category:  category,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("writing setting %s/%s: %w", category, key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is a no-op.
func (s *SettingsStore) Delete(ctx context.Context, category, key string) error {
	err := s.db.WithContext(ctx).
		Where("category = ? AND key = ?", category, key).
		Delete(&Setting{}).Error
	if err != nil {
		return fmt.Errorf("deleting setting %s/%s: %w", category, key, err)
	}
	return nil
}

// List returns all settings in a category.
func (s *SettingsStore) List(ctx context.Context, category string) (map[string]string, error) {
	var settings []Setting
	err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("listing settings in %s: %w", category, err)
	}

	out := make(map[string]string, len(settings))
	for _, setting := range settings {
		out[setting.Key] = setting.Value
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *SettingsStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
