package infrastructure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// SQLiteCatalogCache implements CatalogCache using SQLite
type SQLiteCatalogCache struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLiteCatalogCache opens (creating if needed) the cache database
func NewSQLiteCatalogCache(dbPath string, logger *zap.Logger) (*SQLiteCatalogCache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: zapgorm2.New(logger.Named("gorm")).LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.CatalogEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteCatalogCache{db: db, now: time.Now}, nil
}

// Get returns the cached catalog for url if it was fetched within maxAge.
// maxAge <= 0 accepts any age.
func (c *SQLiteCatalogCache) Get(url string, maxAge time.Duration) ([]domain.FormatDescriptor, bool, error) {
	var entries []domain.CatalogEntry
	query := c.db.Where("url = ?", url)
	if maxAge > 0 {
		query = query.Where("fetched_at >= ?", c.now().Add(-maxAge))
	}
	if err := query.Limit(1).Find(&entries).Error; err != nil {
		return nil, false, fmt.Errorf("failed to read catalog cache: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	var formats []domain.FormatDescriptor
	if err := json.Unmarshal([]byte(entries[0].FormatsJSON), &formats); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached catalog: %w", err)
	}
	return formats, true, nil
}

// Put replaces the cached catalog for url
func (c *SQLiteCatalogCache) Put(url string, formats []domain.FormatDescriptor) error {
	if formats == nil {
		formats = []domain.FormatDescriptor{}
	}
	data, err := json.Marshal(formats)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	entry := domain.CatalogEntry{
		URL:         url,
		FormatsJSON: string(data),
		FormatCount: len(formats),
		FetchedAt:   c.now(),
	}
	return c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"formats_json", "format_count", "fetched_at"}),
	}).Create(&entry).Error
}

// Purge deletes entries older than maxAge
func (c *SQLiteCatalogCache) Purge(maxAge time.Duration) (int64, error) {
	result := c.db.Where("fetched_at < ?", c.now().Add(-maxAge)).Delete(&domain.CatalogEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge catalog cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of cached catalogs
func (c *SQLiteCatalogCache) Count() (int64, error) {
	var count int64
	err := c.db.Model(&domain.CatalogEntry{}).Count(&count).Error
	return count, err
}

// Close closes the database connection
func (c *SQLiteCatalogCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
