//go:build sqlite_fts5

package catalog

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS stories_fts USING fts5(
			package UNINDEXED,
			story_id UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, pkg, storyID, body string) error {
	_, err := tx.Exec(`INSERT INTO stories_fts (package, story_id, body) VALUES (?, ?, ?)`, pkg, storyID, body)
	if err != nil {
		return fmt.Errorf("catalog: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, pkg string) {
	_, _ = tx.Exec(`DELETE FROM stories_fts WHERE package = ?`, pkg)
}

// Search performs an FTS5 full-text search over story text.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT package,
		       story_id,
		       snippet(stories_fts, 2, '<b>', '</b>', '...', 64)
		FROM stories_fts
		WHERE stories_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Package, &r.StoryID, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
