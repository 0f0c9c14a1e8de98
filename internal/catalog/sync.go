package catalog

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/idmlkit/internal/checksum"
	"github.com/starford/idmlkit/internal/document"
	"github.com/starford/idmlkit/internal/storage"
)

// IsPackage reports whether a library-relative path is an archive the
// catalog tracks. Hidden files, including in-flight commit archives, are
// ignored.
func IsPackage(rel string) bool {
	base := path.Base(rel)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(path.Ext(base), ".idml")
}

// Sync walks the library and brings the catalog up to date:
//   - new/changed archives are opened read-only and upserted
//   - archives removed from disk are deleted from the catalog
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if !IsPackage(m.Path) {
			continue
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := CatalogFile(db, store, m.Path, logger); err != nil {
			logger.Warn("sync: catalog failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: cataloged", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePackage(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// CatalogFile opens one archive read-only and upserts its summary and story
// text.
func CatalogFile(db *DB, store storage.Provider, rel string, logger *slog.Logger) error {
	abs, err := store.Abs(rel)
	if err != nil {
		return err
	}
	cs, err := checksum.File(abs)
	if err != nil {
		return err
	}

	pkg, err := document.Open(abs, document.ModeRead, document.WithLogger(logger))
	if err != nil {
		return err
	}
	defer pkg.Close()

	sum, err := pkg.Summary()
	if err != nil {
		return err
	}
	stories, err := pkg.StoryTexts()
	if err != nil {
		return err
	}
	sum.Path = rel
	sum.Checksum = cs
	sum.UpdatedAt = time.Now().UTC()
	return db.UpsertPackage(sum, stories)
}
