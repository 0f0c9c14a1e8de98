package document

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/archive"
	"github.com/starford/idmlkit/internal/storage"
)

// Operation is a unit of work run inside a transaction.
type Operation func(tx *Tx) error

// Tx is the handle an Operation receives. It is valid only for the duration
// of the call.
type Tx struct {
	pkg   *Package
	depth int
}

// Package returns the package being edited.
func (tx *Tx) Package() *Package { return tx.pkg }

// Depth is 1 for the outermost guard and grows with nesting.
func (tx *Tx) Depth() int { return tx.depth }

// ID returns the transaction id shared by every nesting level.
func (tx *Tx) ID() string {
	if tx.pkg.wc == nil {
		return ""
	}
	return tx.pkg.wc.txID
}

// WorkingCopyPath returns the scratch directory of the transaction.
func (tx *Tx) WorkingCopyPath() string {
	dir, _ := tx.pkg.WorkingCopyPath()
	return dir
}

// Run executes op inside a transaction that commits over the original
// archive.
func (p *Package) Run(op Operation) error {
	return p.RunTo(p.path, op)
}

// RunTo executes op inside a transaction. When op returns nil the outermost
// call repacks the working copy and atomically replaces dest with it. Any
// failure, including a panic, discards the working copy and leaves dest
// untouched; the error is a *apperr.TransactionAbortError unless trace mode
// is on. Nested calls join the running transaction and ignore dest.
func (p *Package) RunTo(dest string, op Operation) error {
	if p.closed {
		return ErrClosed
	}
	if p.depth > 0 {
		p.depth++
		defer func() { p.depth-- }()
		return op(&Tx{pkg: p, depth: p.depth})
	}
	if p.wc != nil {
		return ErrWorkingCopyHeld
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("document: resolve %s: %w", dest, err)
	}
	if p.mode == ModeRead && p.samePath(abs) {
		return fmt.Errorf("document: commit %s: %w", p.path, apperr.ErrReadOnly)
	}

	if err := p.begin(abs); err != nil {
		return err
	}
	p.depth = 1

	defer func() {
		if r := recover(); r != nil {
			p.abort(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	if _, err := p.Refs(); err != nil {
		return p.fail(err)
	}
	if err := op(&Tx{pkg: p, depth: 1}); err != nil {
		return p.fail(err)
	}
	if err := p.commit(); err != nil {
		return p.fail(err)
	}
	return nil
}

// Save writes the package to dest. During a transaction it snapshots the
// working copy without ending the transaction and refuses the package's own
// path; otherwise it runs an empty transaction targeting dest.
func (p *Package) Save(dest string) error {
	if p.closed {
		return ErrClosed
	}
	if p.depth == 0 {
		return p.RunTo(dest, func(*Tx) error { return nil })
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("document: resolve %s: %w", dest, err)
	}
	// The outermost Run owns the archive; replacing it here would survive an abort.
	if p.samePath(abs) {
		return fmt.Errorf("document: save %s: %w", p.path, ErrSaveInPlace)
	}
	if err := p.applySyncPolicy(); err != nil {
		return err
	}
	return p.repack(abs)
}

// Discard releases a working copy kept bound by a traced failure.
func (p *Package) Discard() error {
	if p.depth > 0 {
		return fmt.Errorf("document: discard %s: transaction in progress", p.path)
	}
	if p.wc == nil {
		return nil
	}
	wc := p.wc
	p.release()
	state := TxAborted
	var err error
	if p.retain {
		state = TxRetained
	} else {
		err = os.RemoveAll(wc.dir)
	}
	p.finishJournal(wc.txID, state, errors.New("discarded after traced failure"))
	return err
}

func (p *Package) begin(dest string) error {
	txID := uuid.NewString()
	if p.scratch != "" {
		if err := os.MkdirAll(p.scratch, 0o755); err != nil {
			return &apperr.TransactionAbortError{TxID: txID, Archive: p.path, Err: fmt.Errorf("scratch dir: %w", err)}
		}
	}
	dir, err := os.MkdirTemp(p.scratch, "idmlkit-wc-*")
	if err != nil {
		return &apperr.TransactionAbortError{TxID: txID, Archive: p.path, Err: fmt.Errorf("working copy: %w", err)}
	}

	start := time.Now()
	if err := p.codec.ExtractAll(p.path, dir); err != nil {
		_ = os.RemoveAll(dir)
		p.logger.Warn("extract failed", slog.String("tx", txID), slog.Any("error", err))
		return &apperr.TransactionAbortError{TxID: txID, Archive: p.path, Err: err}
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return &apperr.TransactionAbortError{TxID: txID, Archive: p.path, Err: err}
	}

	// Read-only parts from the archive must not leak into the transaction.
	p.release()
	p.wc = &workingCopy{dir: dir, store: store, txID: txID, dest: dest, started: start}

	p.logger.Info("transaction started",
		slog.String("tx", txID),
		slog.String("working_copy", dir),
		slog.Duration("extract", time.Since(start)),
	)
	if p.journal != nil {
		rec := TxRecord{ID: txID, Archive: p.path, Dest: dest, WorkingCopy: dir, StartedAt: start}
		if err := p.journal.Begin(rec); err != nil {
			p.logger.Warn("journal begin failed", slog.String("tx", txID), slog.Any("error", err))
		}
	}
	return nil
}

func (p *Package) commit() error {
	if err := p.applySyncPolicy(); err != nil {
		return err
	}
	wc := p.wc
	if err := p.repack(wc.dest); err != nil {
		return err
	}

	p.release()
	if err := os.RemoveAll(wc.dir); err != nil {
		p.logger.Warn("remove working copy", slog.String("dir", wc.dir), slog.Any("error", err))
	}
	p.finishJournal(wc.txID, TxCommitted, nil)
	p.logger.Info("transaction committed",
		slog.String("tx", wc.txID),
		slog.String("dest", wc.dest),
		slog.Duration("elapsed", time.Since(wc.started)),
	)
	return nil
}

// repack builds the working copy into a temporary archive next to dest and
// renames it over dest. The archive handle is closed for the swap when dest
// is the package's own file and reopened on the new file.
func (p *Package) repack(dest string) error {
	start := time.Now()
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".idmlkit-commit-*.idml")
	if err != nil {
		return &apperr.ArchiveError{Op: "write", Path: dest, Err: err}
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	if err := p.codec.Build(p.wc.dir, tmpName); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	own := dest == p.path
	if own {
		_ = p.reader.Close()
	}
	if err := storage.ReplaceFile(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		if own {
			p.reopen()
		}
		return &apperr.ArchiveError{Op: "write", Path: dest, Err: err}
	}
	if own {
		p.reopen()
	}
	p.logger.Debug("archive repacked", slog.String("dest", dest), slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (p *Package) reopen() {
	r, err := archive.OpenReader(p.path)
	if err != nil {
		p.logger.Error("reopen archive", slog.Any("error", err))
		p.reader = nil
		p.closed = true
		return
	}
	p.reader = r
}

func (p *Package) applySyncPolicy() error {
	dirty := p.DirtyParts()
	if len(dirty) == 0 {
		return nil
	}
	switch p.policy {
	case SyncAuto:
		for _, name := range dirty {
			if err := p.parts[name].Synchronize(); err != nil {
				return err
			}
		}
		p.logger.Debug("synchronized dirty parts", slog.Any("parts", dirty))
	case SyncStrict:
		return fmt.Errorf("%w: %s", apperr.ErrUnsynchronized, strings.Join(dirty, ", "))
	default:
		p.logger.Warn("committing with unsynchronized parts, their edits are dropped", slog.Any("parts", dirty))
	}
	return nil
}

// fail ends the outermost guard after an error.
func (p *Package) fail(cause error) error {
	if p.trace {
		p.depth = 0
		p.logger.Warn("transaction failed, working copy kept for tracing",
			slog.String("tx", p.wc.txID),
			slog.String("working_copy", p.wc.dir),
			slog.Any("error", cause),
		)
		return cause
	}
	return p.abort(cause)
}

func (p *Package) abort(cause error) error {
	wc := p.wc
	if wc == nil {
		return cause
	}
	p.release()

	ae := &apperr.TransactionAbortError{TxID: wc.txID, Archive: p.path, Err: cause}
	state := TxAborted
	if p.retain {
		ae.WorkingCopy = wc.dir
		state = TxRetained
	} else if err := os.RemoveAll(wc.dir); err != nil {
		p.logger.Warn("remove working copy", slog.String("dir", wc.dir), slog.Any("error", err))
	}
	p.finishJournal(wc.txID, state, cause)
	p.logger.Warn("transaction aborted",
		slog.String("tx", wc.txID),
		slog.String("state", string(state)),
		slog.Any("error", cause),
	)
	return ae
}

func (p *Package) finishJournal(id string, state TxState, cause error) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Finish(id, state, cause); err != nil {
		p.logger.Warn("journal finish failed", slog.String("tx", id), slog.Any("error", err))
	}
}
