package catalog

import (
	"github.com/starford/idmlkit/internal/document"
	"github.com/starford/idmlkit/internal/models"
)

// Catalog defines the read/write operations consumers need.
// Depend on this interface rather than *DB to allow fakes in tests.
type Catalog interface {
	UpsertPackage(sum models.PackageSummary, stories []models.StoryText) error
	DeletePackage(path string) error
	GetChecksum(path string) (string, error)
	GetPackage(path string) (*models.PackageSummary, error)
	ListPackages(limit, offset int) ([]models.PackageSummary, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies Catalog and the transaction journal at compile time.
var (
	_ Catalog          = (*DB)(nil)
	_ document.Journal = (*DB)(nil)
)
