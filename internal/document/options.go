package document

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/idmlkit/internal/archive"
)

// Mode controls whether the original archive may be replaced.
type Mode int

const (
	// ModeRead allows inspection and RunTo/Save into other files only.
	ModeRead Mode = iota
	// ModeReadWrite allows transactions to commit over the original.
	ModeReadWrite
)

func (m Mode) String() string {
	if m == ModeReadWrite {
		return "rw"
	}
	return "r"
}

// SyncPolicy decides what a commit does with parts that were mutated but
// never synchronized.
type SyncPolicy string

const (
	// SyncManual commits the working copy as it is on disk and logs the
	// unsynchronized parts.
	SyncManual SyncPolicy = "manual"
	// SyncAuto synchronizes every dirty part before repacking.
	SyncAuto SyncPolicy = "auto"
	// SyncStrict aborts the transaction with ErrUnsynchronized.
	SyncStrict SyncPolicy = "strict"
)

// ParseSyncPolicy accepts manual, auto or strict. Empty means manual.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch p := SyncPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SyncManual, nil
	case SyncManual, SyncAuto, SyncStrict:
		return p, nil
	}
	return "", fmt.Errorf("document: unknown sync policy %q", s)
}

// TxState is the lifecycle state recorded for a transaction.
type TxState string

const (
	TxActive    TxState = "active"
	TxCommitted TxState = "committed"
	TxAborted   TxState = "aborted"
	TxRetained  TxState = "retained"
	TxReclaimed TxState = "reclaimed"
)

// TxRecord describes a transaction when it starts.
type TxRecord struct {
	ID          string
	Archive     string
	Dest        string
	WorkingCopy string
	StartedAt   time.Time
}

// Journal records transaction boundaries. Failures are logged and never
// affect the transaction outcome.
type Journal interface {
	Begin(rec TxRecord) error
	Finish(id string, state TxState, cause error) error
}

// Option configures a Package.
type Option func(*Package)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Package) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCodec replaces the archive codec.
func WithCodec(c archive.Codec) Option {
	return func(p *Package) {
		if c != nil {
			p.codec = c
		}
	}
}

// WithScratchDir sets the parent directory of working copies. Empty means
// the system temp directory.
func WithScratchDir(dir string) Option {
	return func(p *Package) { p.scratch = dir }
}

// WithRetainOnAbort keeps the working copy of an aborted transaction on
// disk. Its path is reported in the TransactionAbortError and the journal.
func WithRetainOnAbort(retain bool) Option {
	return func(p *Package) { p.retain = retain }
}

// WithSyncPolicy sets the commit-time handling of dirty parts.
func WithSyncPolicy(sp SyncPolicy) Option {
	return func(p *Package) { p.policy = sp }
}

// WithTrace makes failed transactions return the raw error and keep the
// working copy bound until Discard is called.
func WithTrace(trace bool) Option {
	return func(p *Package) { p.trace = trace }
}

// WithJournal records transaction boundaries.
func WithJournal(j Journal) Option {
	return func(p *Package) { p.journal = j }
}
