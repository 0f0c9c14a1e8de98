//go:build sqlite_fts5

package catalog

import (
	"testing"

	"github.com/starford/idmlkit/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM stories_fts`).Scan(&count); err != nil {
		t.Fatalf("stories_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	sum := models.PackageSummary{Path: "fts.idml", Checksum: "f1"}
	if err := db.UpsertPackage(sum, []models.StoryText{{ID: "S1", Text: "The catalog provides powerful full-text search over stories."}}); err != nil {
		t.Fatalf("UpsertPackage: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Package != "fts.idml" || results[0].StoryID != "S1" {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPackage(models.PackageSummary{Path: "gone.idml", Checksum: "g"}, []models.StoryText{{ID: "S1", Text: "vanishing content"}})
	_ = db.DeletePackage("gone.idml")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Package == "gone.idml" {
			t.Error("deleted package still in FTS index")
		}
	}
}
