package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/models"
)

// SearchResult represents one story hit.
type SearchResult struct {
	Package string `json:"package"`
	StoryID string `json:"story_id"`
	Snippet string `json:"snippet"`
}

// UpsertPackage inserts or replaces a package row and all of its story text
// within a transaction.
func (db *DB) UpsertPackage(sum models.PackageSummary, stories []models.StoryText) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if sum.UpdatedAt.IsZero() {
		sum.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO packages (path, checksum, spreads, pages, stories, active_layer, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum     = excluded.checksum,
			spreads      = excluded.spreads,
			pages        = excluded.pages,
			stories      = excluded.stories,
			active_layer = excluded.active_layer,
			updated_at   = excluded.updated_at
	`, sum.Path, sum.Checksum, sum.Spreads, sum.Pages, sum.Stories, sum.ActiveLayer, sum.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert package: %w", err)
	}

	// Replace stories: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM stories WHERE package = ?`, sum.Path)
	ftsDelete(tx, sum.Path)
	if len(stories) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO stories (package, story_id, body) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("catalog: prepare story insert: %w", err)
		}
		defer stmt.Close()
		for _, s := range stories {
			if _, err := stmt.Exec(sum.Path, s.ID, s.Text); err != nil {
				return fmt.Errorf("catalog: insert story: %w", err)
			}
			// FTS upsert (no-op when FTS5 tag is absent).
			if err := ftsUpsert(tx, sum.Path, s.ID, s.Text); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeletePackage removes a package and its stories.
func (db *DB) DeletePackage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM stories WHERE package = ?`, path)
	_, _ = tx.Exec(`DELETE FROM packages WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a package, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM packages WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: checksum: %w", err)
	}
	return cs, nil
}

// GetPackage returns one package row.
func (db *DB) GetPackage(path string) (*models.PackageSummary, error) {
	row := db.conn.QueryRow(`
		SELECT path, checksum, spreads, pages, stories, active_layer, updated_at
		FROM packages WHERE path = ?
	`, path)
	var s models.PackageSummary
	err := row.Scan(&s.Path, &s.Checksum, &s.Spreads, &s.Pages, &s.Stories, &s.ActiveLayer, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get package: %w", err)
	}
	return &s, nil
}

// ListPackages returns a page of packages ordered by path, plus the total.
func (db *DB) ListPackages(limit, offset int) ([]models.PackageSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM packages`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count packages: %w", err)
	}
	rows, err := db.conn.Query(`
		SELECT path, checksum, spreads, pages, stories, active_layer, updated_at
		FROM packages
		ORDER BY path
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list packages: %w", err)
	}
	defer rows.Close()

	var out []models.PackageSummary
	for rows.Next() {
		var s models.PackageSummary
		if err := rows.Scan(&s.Path, &s.Checksum, &s.Spreads, &s.Pages, &s.Stories, &s.ActiveLayer, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// AllChecksums returns path → checksum for every cataloged package.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM packages`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
