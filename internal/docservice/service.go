// Package docservice coordinates the archive library, the catalog and the
// transaction guard for the HTTP and MCP surfaces.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/archive"
	"github.com/starford/idmlkit/internal/catalog"
	"github.com/starford/idmlkit/internal/checksum"
	"github.com/starford/idmlkit/internal/document"
	"github.com/starford/idmlkit/internal/models"
	"github.com/starford/idmlkit/internal/part"
	"github.com/starford/idmlkit/internal/storage"
)

// Event kinds passed to the callback.
const (
	EventCommitted = "committed"
	EventCreated   = "created"
)

// Default frame size used when a text range is placed without one.
const (
	DefaultFrameWidth  = 200.0
	DefaultFrameHeight = 100.0
)

// PackageDetail is the full representation of an archive.
type PackageDetail struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	*document.Layout
}

// TextRangeRequest describes a new story holding one tagged element. When
// PageID is set a text frame threaded to the story is centered on that page.
type TextRangeRequest struct {
	StoryID   string  `json:"story_id"`
	ElementID string  `json:"element_id"`
	Tag       string  `json:"tag"`
	Text      string  `json:"text"`
	PageID    string  `json:"page_id,omitempty"`
	FrameID   string  `json:"frame_id,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
}

// Validate checks the request shape.
func (r TextRangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StoryID, validation.Required),
		validation.Field(&r.ElementID, validation.Required),
		validation.Field(&r.Tag, validation.Required),
		validation.Field(&r.Width, validation.Min(0.0)),
		validation.Field(&r.Height, validation.Min(0.0)),
	)
}

// TextRangeResult reports what AddTextRange created.
type TextRangeResult struct {
	Package   string `json:"package"`
	StoryID   string `json:"story_id"`
	ElementID string `json:"element_id"`
	FrameID   string `json:"frame_id,omitempty"`
	PageID    string `json:"page_id,omitempty"`
	Checksum  string `json:"checksum"`
}

// ElementResult reports an element after its text was replaced.
type ElementResult struct {
	Package   string `json:"package"`
	StoryID   string `json:"story_id"`
	ElementID string `json:"element_id"`
	Text      string `json:"text"`
	Checksum  string `json:"checksum"`
}

// Options configures how the service opens archives.
type Options struct {
	ScratchDir    string
	RetainOnAbort bool
	SyncPolicy    document.SyncPolicy
	// Trace keeps the raw error of a failed transaction. Each request closes
	// its package, so trace also retains the working copy on disk.
	Trace bool
}

// Service coordinates library storage, the catalog and document edits.
type Service struct {
	store  storage.Provider
	db     *catalog.DB
	opts   Options
	logger *slog.Logger
	locks  *keyedMutex
	onEvt  catalog.EventCallback
}

// NewService creates a new document service.
func NewService(store storage.Provider, db *catalog.DB, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		db:     db,
		opts:   opts,
		logger: logger,
		locks:  newKeyedMutex(),
	}
}

// OnEvent registers cb to be called after every committed change.
func (s *Service) OnEvent(cb catalog.EventCallback) {
	s.onEvt = cb
}

// ListPackages returns a page of cataloged archives.
func (s *Service) ListPackages(_ context.Context, limit, offset int) ([]models.PackageSummary, int, error) {
	rows, total, err := s.db.ListPackages(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(rows), total, nil
}

// GetPackage opens an archive read-only and describes its layout.
func (s *Service) GetPackage(_ context.Context, name string) (*PackageDetail, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	abs, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	pkg, err := document.Open(abs, document.ModeRead, s.documentOptions()...)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	layout, err := pkg.Layout()
	if err != nil {
		return nil, err
	}
	cs, err := checksum.File(abs)
	if err != nil {
		return nil, err
	}
	return &PackageDetail{Path: name, Checksum: cs, Layout: layout}, nil
}

// ArchivePath returns the absolute path of a library archive.
func (s *Service) ArchivePath(name string) (string, error) {
	return s.resolve(name)
}

// AddTextRange adds a story with one tagged element holding req.Text and,
// when req.PageID is set, a text frame centered on that page on the active
// layer. Everything happens in one transaction.
func (s *Service) AddTextRange(_ context.Context, name string, req TextRangeRequest, ifMatch string) (*TextRangeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if req.PageID != "" {
		if req.FrameID == "" {
			req.FrameID = "tf_" + req.StoryID
		}
		if req.Width == 0 {
			req.Width = DefaultFrameWidth
		}
		if req.Height == 0 {
			req.Height = DefaultFrameHeight
		}
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	abs, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := checkIfMatch(abs, ifMatch); err != nil {
		return nil, err
	}

	pkg, err := document.Open(abs, document.ModeReadWrite, s.documentOptions()...)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	err = pkg.Run(func(tx *document.Tx) error {
		doc := tx.Package()
		story, err := doc.AddStoryWithContent(req.StoryID, req.ElementID, req.Tag)
		if err != nil {
			return err
		}
		if err := story.SetContent(req.ElementID, req.Text); err != nil {
			return err
		}
		if err := story.Synchronize(); err != nil {
			return err
		}
		if req.PageID == "" {
			return nil
		}
		return placeFrame(doc, req)
	})
	if err != nil {
		return nil, err
	}

	cs := s.afterCommit(name, abs)
	return &TextRangeResult{
		Package:   name,
		StoryID:   req.StoryID,
		ElementID: req.ElementID,
		FrameID:   req.FrameID,
		PageID:    req.PageID,
		Checksum:  cs,
	}, nil
}

// placeFrame centers a text frame for req's story on req.PageID.
func placeFrame(doc *document.Package, req TextRangeRequest) error {
	spreads, err := doc.Spreads()
	if err != nil {
		return err
	}
	for _, sp := range spreads {
		for _, pg := range sp.Pages() {
			if pg.ID() != req.PageID {
				continue
			}
			c, err := pg.Coordinates()
			if err != nil {
				return err
			}
			dm, err := doc.Designmap()
			if err != nil {
				return err
			}
			x, y := part.CenteredOn(c, req.Width, req.Height)
			node, err := sp.AddTextFrame(part.TextFrame{
				ID:      req.FrameID,
				StoryID: req.StoryID,
				LayerID: dm.ActiveLayer(),
				X:       x,
				Y:       y,
				Width:   req.Width,
				Height:  req.Height,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
			}
			refs, err := doc.Refs()
			if err != nil {
				return err
			}
			if err := refs.Register(sp.Part, node); err != nil {
				return err
			}
			return sp.Synchronize()
		}
	}
	return &apperr.UnknownIDError{ID: req.PageID}
}

// SetElementText replaces the text of one element. A non-empty ifMatch must
// equal the archive checksum.
func (s *Service) SetElementText(_ context.Context, name, storyID, elementID, text, ifMatch string) (*ElementResult, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	abs, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := checkIfMatch(abs, ifMatch); err != nil {
		return nil, err
	}

	pkg, err := document.Open(abs, document.ModeReadWrite, s.documentOptions()...)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	err = pkg.Run(func(tx *document.Tx) error {
		story, err := tx.Package().Story(storyID)
		if err != nil {
			return err
		}
		if err := story.SetContent(elementID, text); err != nil {
			return err
		}
		return story.Synchronize()
	})
	if err != nil {
		return nil, err
	}

	cs := s.afterCommit(name, abs)
	return &ElementResult{
		Package:   name,
		StoryID:   storyID,
		ElementID: elementID,
		Text:      text,
		Checksum:  cs,
	}, nil
}

// Search delegates story search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Transactions lists journaled transactions, newest first.
func (s *Service) Transactions(_ context.Context, state document.TxState, limit int) ([]catalog.TxRow, error) {
	rows, err := s.db.Transactions(state, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(rows), nil
}

// ImportPackage stores data as a new library archive after checking that
// it is a readable package.
func (s *Service) ImportPackage(_ context.Context, name string, data []byte) (*models.PackageSummary, error) {
	name = path.Clean(name)
	if !catalog.IsPackage(name) {
		return nil, fmt.Errorf("%w: %q is not an .idml name", apperr.ErrInvalidInput, name)
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	abs, err := s.store.Abs(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if archive.Exists(abs) {
		return nil, apperr.ErrAlreadyExists
	}

	tmp := path.Join(path.Dir(name), ".idmlkit-import-"+uuid.NewString()+".idml")
	if err := s.store.Write(tmp, data); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = s.store.Delete(tmp)
		}
	}()

	tmpAbs, err := s.store.Abs(tmp)
	if err != nil {
		return nil, err
	}
	if err := archive.Validate(tmpAbs); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	pkg, err := document.Open(tmpAbs, document.ModeRead, document.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	_ = pkg.Close()

	if err := s.store.Move(tmp, name); err != nil {
		return nil, err
	}
	committed = true

	if err := catalog.CatalogFile(s.db, s.store, name, s.logger); err != nil {
		return nil, err
	}
	s.emit(EventCreated, name)
	return s.db.GetPackage(name)
}

// Sweep reclaims working copies kept by failed transactions.
func (s *Service) Sweep(_ context.Context) (int, error) {
	return catalog.Sweep(s.db, s.logger)
}

func (s *Service) documentOptions() []document.Option {
	opts := []document.Option{
		document.WithLogger(s.logger),
		document.WithJournal(s.db),
		document.WithSyncPolicy(s.opts.SyncPolicy),
		document.WithRetainOnAbort(s.opts.RetainOnAbort || s.opts.Trace),
		document.WithTrace(s.opts.Trace),
	}
	if s.opts.ScratchDir != "" {
		opts = append(opts, document.WithScratchDir(s.opts.ScratchDir))
	}
	return opts
}

// resolve maps a library name to an existing archive on disk.
func (s *Service) resolve(name string) (string, error) {
	if !catalog.IsPackage(name) {
		return "", apperr.ErrNotFound
	}
	abs, err := s.store.Abs(name)
	if err != nil {
		return "", apperr.ErrNotFound
	}
	if !archive.Exists(abs) {
		return "", apperr.ErrNotFound
	}
	return abs, nil
}

// afterCommit re-catalogs the archive and emits the commit event. It
// returns the new archive checksum.
func (s *Service) afterCommit(name, abs string) string {
	if err := catalog.CatalogFile(s.db, s.store, name, s.logger); err != nil {
		s.logger.Warn("recatalog failed", slog.String("path", name), slog.String("error", err.Error()))
	}
	s.emit(EventCommitted, name)
	cs, err := checksum.File(abs)
	if err != nil {
		s.logger.Warn("checksum failed", slog.String("path", name), slog.String("error", err.Error()))
	}
	return cs
}

func (s *Service) emit(kind, name string) {
	if s.onEvt != nil {
		s.onEvt(kind, name)
	}
}

func checkIfMatch(abs, ifMatch string) error {
	if ifMatch == "" {
		return nil
	}
	cs, err := checksum.File(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if cs != ifMatch {
		return apperr.ErrConflict
	}
	return nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
