// Package document is the aggregate over one IDML archive: its parts, the
// reference index, and the transaction guard that makes edits atomic.
//
// Outside a transaction parts are read straight from the archive and are
// read-only. Run extracts a working copy, hands the operation writable
// parts, and on success repacks the working copy over the archive.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/archive"
	"github.com/starford/idmlkit/internal/part"
	"github.com/starford/idmlkit/internal/refindex"
	"github.com/starford/idmlkit/internal/storage"
)

var (
	// ErrClosed is returned by every operation on a closed Package.
	ErrClosed = errors.New("document: package closed")
	// ErrWorkingCopyHeld is returned while a traced failure keeps its
	// working copy bound. Call Discard to release it.
	ErrWorkingCopyHeld = errors.New("document: working copy held after failed transaction")
	// ErrSaveInPlace is returned by Save when a transaction is active and the
	// target is the open archive itself.
	ErrSaveInPlace = fmt.Errorf("document: cannot save over the open archive during a transaction: %w", apperr.ErrConflict)
)

// Package is one open archive. It is not safe for concurrent use.
type Package struct {
	path    string
	mode    Mode
	codec   archive.Codec
	logger  *slog.Logger
	scratch string
	retain  bool
	policy  SyncPolicy
	trace   bool
	journal Journal

	reader *archive.Reader
	wc     *workingCopy
	depth  int
	parts  map[string]*part.Part
	refs   *refindex.Index
	closed bool
}

// workingCopy is the extracted form of the archive. It is set only while a
// transaction is in progress.
type workingCopy struct {
	dir     string
	store   *storage.FS
	txID    string
	dest    string
	started time.Time
}

// Open opens the archive at path.
func Open(path string, mode Mode, opts ...Option) (*Package, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("document: resolve %s: %w", path, err)
	}
	p := &Package{
		path:   abs,
		mode:   mode,
		codec:  archive.ZipCodec{},
		logger: slog.Default(),
		policy: SyncManual,
		parts:  make(map[string]*part.Part),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("archive", abs))

	r, err := archive.OpenReader(abs)
	if err != nil {
		return nil, err
	}
	if !r.Has(part.DesignmapName) {
		_ = r.Close()
		return nil, &apperr.ArchiveError{Op: "read", Path: abs, Err: fmt.Errorf("missing %s", part.DesignmapName)}
	}
	p.reader = r
	return p, nil
}

// Path returns the absolute archive path.
func (p *Package) Path() string { return p.path }

// Mode returns the mode the package was opened with.
func (p *Package) Mode() Mode { return p.mode }

// WorkingCopyPath returns the scratch directory of the active transaction.
func (p *Package) WorkingCopyPath() (string, bool) {
	if p.wc == nil {
		return "", false
	}
	return p.wc.dir, true
}

// Active reports whether a transaction is in progress.
func (p *Package) Active() bool { return p.depth > 0 }

// Depth returns the current guard nesting depth; 0 when idle.
func (p *Package) Depth() int { return p.depth }

// Names lists the archive entries, or the working copy files during a
// transaction.
func (p *Package) Names() ([]string, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.wc != nil {
		return p.wc.store.Names("")
	}
	return p.reader.Names(), nil
}

// Part returns the named part, loading it on first use. Parts loaded
// outside a transaction cannot be synchronized.
func (p *Package) Part(name string) (*part.Part, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if pt, ok := p.parts[name]; ok {
		return pt, nil
	}

	var (
		data []byte
		err  error
		w    part.Writer
	)
	if p.wc != nil {
		data, err = p.wc.store.Read(name)
		w = p.wc.store
	} else {
		data, err = p.reader.ReadFile(name)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("document: part %s: %w", name, apperr.ErrNotFound)
		}
		return nil, err
	}
	pt, err := part.Parse(name, data, w)
	if err != nil {
		return nil, err
	}
	p.parts[name] = pt
	return pt, nil
}

// Designmap returns the package manifest.
func (p *Package) Designmap() (*part.Designmap, error) {
	pt, err := p.Part(part.DesignmapName)
	if err != nil {
		return nil, err
	}
	return part.AsDesignmap(pt)
}

// Tags returns XML/Tags.xml, or ErrNotFound when the package has none.
func (p *Package) Tags() (*part.Tags, error) {
	pt, err := p.Part(part.TagsName)
	if err != nil {
		return nil, err
	}
	return part.AsTags(pt)
}

// SpreadNames returns the spread part names in designmap order.
func (p *Package) SpreadNames() ([]string, error) {
	dm, err := p.Designmap()
	if err != nil {
		return nil, err
	}
	return dm.SpreadSources(), nil
}

// Spreads returns the spreads in designmap order.
func (p *Package) Spreads() ([]*part.Spread, error) {
	names, err := p.SpreadNames()
	if err != nil {
		return nil, err
	}
	out := make([]*part.Spread, 0, len(names))
	for _, name := range names {
		pt, err := p.Part(name)
		if err != nil {
			return nil, err
		}
		sp, err := part.AsSpread(pt)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

// StoryIDs returns the ids of every story file present, sorted.
func (p *Package) StoryIDs() ([]string, error) {
	names, err := p.Names()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		if id, ok := part.StoryIDFromName(name); ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// HasStory reports whether a story file with id exists.
func (p *Package) HasStory(id string) bool {
	ids, err := p.StoryIDs()
	if err != nil {
		return false
	}
	i := sort.SearchStrings(ids, id)
	return i < len(ids) && ids[i] == id
}

// Story returns the story with the given id.
func (p *Package) Story(id string) (*part.Story, error) {
	pt, err := p.Part(part.StoryName(id))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &apperr.UnknownIDError{ID: id}
		}
		return nil, err
	}
	return part.AsStory(pt)
}

// Refs returns the reference index, building it on first use.
func (p *Package) Refs() (*refindex.Index, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.refs != nil {
		return p.refs, nil
	}
	names, err := p.Names()
	if err != nil {
		return nil, err
	}
	var parts []*part.Part
	for _, name := range names {
		if !part.IsXML(name) || part.KindOf(name) == part.KindMeta {
			continue
		}
		pt, err := p.Part(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, pt)
	}
	idx, err := refindex.Build(parts)
	if err != nil {
		return nil, err
	}
	p.refs = idx
	return idx, nil
}

// Resolve looks up the node defining id.
func (p *Package) Resolve(id string) (refindex.Ref, error) {
	idx, err := p.Refs()
	if err != nil {
		return refindex.Ref{}, err
	}
	return idx.Resolve(id)
}

// DirtyParts returns the names of loaded parts with unsynchronized changes.
func (p *Package) DirtyParts() []string {
	var out []string
	for name, pt := range p.parts {
		if pt.Writable() && pt.Dirty() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Close releases the archive handle. A working copy held after a traced
// failure is discarded first.
func (p *Package) Close() error {
	if p.closed {
		return nil
	}
	if p.depth > 0 {
		return fmt.Errorf("document: close %s: transaction in progress", p.path)
	}
	var errs []error
	if p.wc != nil {
		errs = append(errs, p.Discard())
	}
	p.closed = true
	errs = append(errs, p.reader.Close())
	p.reader = nil
	return errors.Join(errs...)
}

// release drops every in-transaction handle.
func (p *Package) release() {
	for _, pt := range p.parts {
		pt.Detach()
	}
	p.parts = make(map[string]*part.Part)
	p.refs = nil
	p.wc = nil
	p.depth = 0
}

func (p *Package) samePath(dest string) bool {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return false
	}
	return filepath.Clean(abs) == p.path
}
