// Package apperr defines the error taxonomy shared by every idmlkit layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	ErrArchiveRead        = errors.New("archive read")
	ErrArchiveWrite       = errors.New("archive write")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrUnknownID          = errors.New("unknown id")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrNoWorkingCopy      = errors.New("no working copy")
	ErrReadOnly           = errors.New("package opened read-only")
	ErrUnsynchronized     = errors.New("unsynchronized parts")
	ErrUnsupportedKind    = errors.New("unsupported part kind")
)

// ArchiveError reports a container-level failure. Op is "read" or "write".
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both the cause and the matching sentinel.
func (e *ArchiveError) Unwrap() []error {
	if e.Op == "write" {
		return []error{ErrArchiveWrite, e.Err}
	}
	return []error{ErrArchiveRead, e.Err}
}

// DuplicateIDError is returned when an id is already defined in the package.
type DuplicateIDError struct {
	ID       string
	Existing string // part defining the id first
	Part     string // part attempting to define it again
}

func (e *DuplicateIDError) Error() string {
	if e.Part == "" || e.Part == e.Existing {
		return fmt.Sprintf("duplicate id %q (defined in %s)", e.ID, e.Existing)
	}
	return fmt.Sprintf("duplicate id %q in %s (already defined in %s)", e.ID, e.Part, e.Existing)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// UnknownIDError is returned when an id cannot be resolved. Scope names the
// part the lookup was restricted to, if any.
type UnknownIDError struct {
	ID    string
	Scope string
}

func (e *UnknownIDError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("unknown id %q in %s", e.ID, e.Scope)
	}
	return fmt.Sprintf("unknown id %q", e.ID)
}

func (e *UnknownIDError) Unwrap() error { return ErrUnknownID }

// TransactionAbortError wraps whatever ended a guarded operation early.
// WorkingCopy is set only when the scratch directory was kept on disk.
type TransactionAbortError struct {
	TxID        string
	Archive     string
	WorkingCopy string
	Err         error
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("transaction %s on %s aborted: %v", e.TxID, e.Archive, e.Err)
}

func (e *TransactionAbortError) Unwrap() []error {
	return []error{ErrTransactionAborted, e.Err}
}
