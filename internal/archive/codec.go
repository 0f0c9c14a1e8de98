// Package archive reads and writes IDML containers.
//
// An IDML archive is a zip file whose first entry is an uncompressed
// "mimetype" file. Everything else is deflated XML.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/starford/idmlkit/internal/apperr"
)

// MimetypeEntry is the fixed first entry of every IDML archive.
const MimetypeEntry = "mimetype"

// Mimetype is the content of MimetypeEntry.
const Mimetype = "application/vnd.adobe.indesign-idml-package"

// scratchPrefix marks in-flight files left in a working copy by atomic
// writes. They never become archive entries.
const scratchPrefix = ".idmlkit-"

// Entry describes one file inside an archive.
type Entry struct {
	Name   string
	Size   uint64
	Stored bool
}

// Codec is the container contract the document layer depends on.
type Codec interface {
	// List returns every file entry in archive order.
	List(archivePath string) ([]Entry, error)
	// ExtractAll unpacks every entry into destDir, preserving relative paths.
	ExtractAll(archivePath, destDir string) error
	// Build writes a new archive at archivePath from every file under sourceDir.
	Build(sourceDir, archivePath string) error
}

// ZipCodec implements Codec on top of klauspost/compress/zip.
type ZipCodec struct{}

var _ Codec = ZipCodec{}

// List returns the file entries of the archive.
func (ZipCodec) List(archivePath string) ([]Entry, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &apperr.ArchiveError{Op: "read", Path: archivePath, Err: err}
	}
	defer zr.Close()

	out := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		out = append(out, Entry{
			Name:   f.Name,
			Size:   f.UncompressedSize64,
			Stored: f.Method == zip.Store,
		})
	}
	return out, nil
}

// ExtractAll unpacks the archive into destDir, which must exist.
func (ZipCodec) ExtractAll(archivePath, destDir string) (err error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &apperr.ArchiveError{Op: "read", Path: archivePath, Err: err}
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = &apperr.ArchiveError{Op: "read", Path: archivePath, Err: closeErr}
		}
	}()

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("archive: resolve destination: %w", err)
	}

	for _, file := range zr.File {
		destPath, pathErr := entryPath(absDest, file.Name)
		if pathErr != nil {
			return &apperr.ArchiveError{Op: "read", Path: archivePath, Err: pathErr}
		}
		if file.FileInfo().IsDir() {
			if mkErr := os.MkdirAll(destPath, 0o755); mkErr != nil {
				return fmt.Errorf("archive: create directory: %w", mkErr)
			}
			continue
		}
		if mkErr := os.MkdirAll(filepath.Dir(destPath), 0o755); mkErr != nil {
			return fmt.Errorf("archive: create parent directory: %w", mkErr)
		}
		if exErr := extractFile(file, destPath); exErr != nil {
			return &apperr.ArchiveError{Op: "read", Path: archivePath, Err: fmt.Errorf("extract %s: %w", file.Name, exErr)}
		}
	}
	return nil
}

// Build creates archivePath from sourceDir. The mimetype entry, when
// present, is written first and stored uncompressed; the remaining entries
// follow in lexical order so repeated builds are deterministic.
func (ZipCodec) Build(sourceDir, archivePath string) (err error) {
	files, err := collectFiles(sourceDir)
	if err != nil {
		return &apperr.ArchiveError{Op: "write", Path: archivePath, Err: err}
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return &apperr.ArchiveError{Op: "write", Path: archivePath, Err: err}
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(archivePath)
		}
	}()

	zw := zip.NewWriter(out)
	for _, rel := range files {
		if addErr := addFile(zw, sourceDir, rel); addErr != nil {
			_ = zw.Close()
			return &apperr.ArchiveError{Op: "write", Path: archivePath, Err: addErr}
		}
	}
	if err = zw.Close(); err != nil {
		return &apperr.ArchiveError{Op: "write", Path: archivePath, Err: err}
	}
	if err = out.Sync(); err != nil {
		return &apperr.ArchiveError{Op: "write", Path: archivePath, Err: err}
	}
	if err = out.Close(); err != nil {
		return &apperr.ArchiveError{Op: "write", Path: archivePath, Err: err}
	}
	return nil
}

// collectFiles returns slash-separated relative paths with mimetype first.
func collectFiles(root string) ([]string, error) {
	var files []string
	hasMimetype := false
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), scratchPrefix) {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == MimetypeEntry {
			hasMimetype = true
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if hasMimetype {
		files = append([]string{MimetypeEntry}, files...)
	}
	return files, nil
}

func addFile(zw *zip.Writer, root, rel string) error {
	src := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("file header %s: %w", rel, err)
	}
	header.Name = rel
	header.Method = zip.Deflate
	if rel == MimetypeEntry {
		header.Method = zip.Store
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", rel, err)
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write entry %s: %w", rel, err)
	}
	return nil
}

// entryPath maps an archive entry name under dest, rejecting traversal.
func entryPath(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid entry path %q", name)
	}
	return p, nil
}

func extractFile(file *zip.File, destPath string) (err error) {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	//nolint:gosec // G110: archives are opened explicitly by the caller
	_, err = io.Copy(dst, rc)
	return err
}
