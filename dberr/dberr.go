// Package dberr collects the error taxonomy shared by every layer of the
// engine: plain sentinel values compared with errors.Is, wrapped with
// github.com/pkg/errors at call boundaries so a %+v print carries a stack
// trace back to the fault.
package dberr

import "github.com/pkg/errors"

// Catalog / schema lookup misses.
var (
	ErrNoSuchTable = errors.New("no such table")
	ErrNoSuchField = errors.New("no such field")
)

// Page / tuple level errors. PageFull, PageOutOfRange, and NotOnThisPage are
// internal signals between HeapFile and HeapPage; a caller seeing one
// un-wrapped indicates a bug in the layer above, not a user-facing
// condition.
var (
	ErrPageOutOfRange = errors.New("page out of range")
	ErrPageFull       = errors.New("page full")
	ErrSlotEmpty      = errors.New("slot empty")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrNotOnThisPage  = errors.New("tuple not on this page")
)

// Buffer pool / disk errors.
var (
	ErrBufferFull = errors.New("buffer pool full: every cached page is dirty")
	ErrIO         = errors.New("io error")
)

// Operator-protocol violations. These are programmer errors; callers that
// hit them are free to let them propagate or panic.
var (
	ErrIllegalState         = errors.New("illegal state")
	ErrNoSuchElement        = errors.New("no such element")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Wrap attaches msg to err using github.com/pkg/errors, preserving the
// original sentinel for errors.Is checks upstream.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Wrapf is the formatted form of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// DbError is a generic wrapper for call sites that do not need to
// discriminate between error kinds.
type DbError struct {
	cause error
}

func (e *DbError) Error() string {
	return e.cause.Error()
}

func (e *DbError) Unwrap() error {
	return e.cause
}

// AsDbError wraps err in a DbError, or returns nil if err is nil.
func AsDbError(err error) error {
	if err == nil {
		return nil
	}
	return &DbError{cause: err}
}
