package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/starford/idmlkit/internal/apperr"
)

// Reader is an open, read-only handle on an archive. It is what a package
// holds between transactions.
type Reader struct {
	path string
	zr   *zip.ReadCloser
}

// OpenReader opens path and checks that it looks like an IDML container.
func OpenReader(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &apperr.ArchiveError{Op: "read", Path: path, Err: err}
	}
	r := &Reader{path: path, zr: zr}
	if len(zr.File) == 0 {
		_ = zr.Close()
		return nil, &apperr.ArchiveError{Op: "read", Path: path, Err: errors.New("empty archive")}
	}
	return r, nil
}

// Path returns the archive file path.
func (r *Reader) Path() string { return r.path }

// Names returns the entry names in archive order.
func (r *Reader) Names() []string {
	out := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// Has reports whether name is an entry of the archive.
func (r *Reader) Has(name string) bool {
	for _, f := range r.zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ReadFile returns the content of one entry. A missing entry yields an
// error wrapping fs.ErrNotExist.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	for _, f := range r.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &apperr.ArchiveError{Op: "read", Path: r.path, Err: err}
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, &apperr.ArchiveError{Op: "read", Path: r.path, Err: fmt.Errorf("%s: %w", name, err)}
		}
		return data, nil
	}
	return nil, fmt.Errorf("archive: %s: %w", name, fs.ErrNotExist)
}

// Close releases the underlying file handle. Safe to call twice.
func (r *Reader) Close() error {
	if r == nil || r.zr == nil {
		return nil
	}
	err := r.zr.Close()
	r.zr = nil
	return err
}

// Validate checks the fixed mimetype entry of an archive on disk.
func Validate(path string) error {
	r, err := OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	first := r.zr.File[0]
	if first.Name != MimetypeEntry {
		return &apperr.ArchiveError{Op: "read", Path: path, Err: fmt.Errorf("first entry is %q, want %q", first.Name, MimetypeEntry)}
	}
	data, err := r.ReadFile(MimetypeEntry)
	if err != nil {
		return err
	}
	if string(data) != Mimetype {
		return &apperr.ArchiveError{Op: "read", Path: path, Err: fmt.Errorf("unexpected mimetype %q", data)}
	}
	return nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
