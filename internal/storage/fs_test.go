package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte(`<?xml version="1.0"?><Story Self="u1"/>`)
	if err := s.Write("Stories/Story_u1.xml", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Stories/Story_u1.xml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("a/b/c.xml", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.xml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("del.xml", []byte("bye"))
	if err := s.Delete("del.xml"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.xml"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestMove(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("old.idml", []byte("data"))
	if err := s.Move("old.idml", "sub/new.idml"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.idml")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.idml"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestListReturnsSlashPaths(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("mimetype", []byte("m"))
	_ = s.Write("Spreads/Spread_u1.xml", []byte("s"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	found := false
	for _, it := range items {
		if it.Path == "Spreads/Spread_u1.xml" {
			found = true
			if it.Size != 1 || it.Checksum == "" {
				t.Errorf("metadata = %+v", it)
			}
		}
	}
	if !found {
		t.Errorf("Spreads/Spread_u1.xml missing from %+v", items)
	}
}

func TestListSkipsTempFiles(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.idml", []byte("a"))
	if err := os.WriteFile(filepath.Join(s.Root(), TempPrefix+"123"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("len = %d, want 1", len(items))
	}
}

func TestNamesSortedWithoutReading(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("mimetype", []byte("m"))
	_ = s.Write("Stories/Story_u1.xml", []byte("s"))
	_ = s.Write("Resources/Fonts.xml", []byte("f"))
	if err := os.WriteFile(filepath.Join(s.Root(), TempPrefix+"123"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A dangling link cannot be read, so only a name-only walk can succeed.
	if err := os.Symlink(filepath.Join(s.Root(), "gone.xml"), filepath.Join(s.Root(), "dangling.xml")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	if _, err := s.List(""); err == nil {
		t.Fatal("List should fail on a dangling link")
	}

	names, err := s.Names("")
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	want := []string{"Resources/Fonts.xml", "Stories/Story_u1.xml", "dangling.xml", "mimetype"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.xml",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if _, err := s.Abs(p); err == nil {
			t.Errorf("expected error resolving %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("designmap.xml", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("designmap.xml", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("designmap.xml")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, TempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new.idml")
	dest := filepath.Join(dir, "doc.idml")
	_ = os.WriteFile(dest, []byte("old"), 0o644)
	_ = os.WriteFile(src, []byte("new"), 0o644)

	if err := ReplaceFile(src, dest); err != nil {
		t.Fatalf("ReplaceFile: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "new" {
		t.Errorf("dest = %q, want new", got)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("src still exists: %v", err)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/idmlkit-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "idmlkit-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
