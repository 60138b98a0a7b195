package domain

import "time"

// CatalogEntry is the persisted form of one cached catalog
type CatalogEntry struct {
	URL         string    `gorm:"primaryKey" json:"url"`
	FormatsJSON string    `gorm:"type:text" json:"-"`
	FormatCount int       `json:"format_count"`
	FetchedAt   time.Time `gorm:"index" json:"fetched_at"`
}

// TableName specifies the table name for GORM
func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

// CatalogCache stores the most recent catalog fetched for a URL
type CatalogCache interface {
	// Get returns the cached catalog if it is younger than maxAge
	Get(url string, maxAge time.Duration) ([]FormatDescriptor, bool, error)

	// Put replaces the cached catalog for a URL
	Put(url string, formats []FormatDescriptor) error

	// Purge removes entries older than maxAge and returns how many were removed
	Purge(maxAge time.Duration) (int64, error)
}
