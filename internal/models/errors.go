package models

import (
	"context"
	"errors"
)

// ErrorKind classifies why an operation failed. It is the diagnostic carried by a Result.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInputNotFound       ErrorKind = "INPUT_NOT_FOUND"
	KindInsufficientInputs  ErrorKind = "INSUFFICIENT_INPUTS"
	KindInvalidRange        ErrorKind = "INVALID_RANGE"
	KindNoValidPages        ErrorKind = "NO_VALID_PAGES"
	KindEmptyOutput         ErrorKind = "EMPTY_OUTPUT"
	KindCancelled           ErrorKind = "CANCELLED"
	KindBadPassword         ErrorKind = "BAD_PASSWORD"
	KindIOFailure           ErrorKind = "IO_FAILURE"
	KindPartialBatchFailure ErrorKind = "PARTIAL_BATCH_FAILURE"
	KindInvalidSettings     ErrorKind = "INVALID_SETTINGS"
)

var (
	ErrInputNotFound       = errors.New("input file not found")
	ErrInsufficientInputs  = errors.New("at least 2 input files are required")
	ErrInvalidRange        = errors.New("start page cannot be greater than end page")
	ErrNoValidPages        = errors.New("no valid pages specified")
	ErrEmptyOutput         = errors.New("output document is empty")
	ErrCancelled           = errors.New("operation was cancelled")
	ErrBadPassword         = errors.New("invalid password")
	ErrPartialBatchFailure = errors.New("one or more files in the batch failed")
	ErrInvalidSettings     = errors.New("invalid settings")
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInputNotFound, KindInputNotFound},
	{ErrInsufficientInputs, KindInsufficientInputs},
	{ErrInvalidRange, KindInvalidRange},
	{ErrNoValidPages, KindNoValidPages},
	{ErrEmptyOutput, KindEmptyOutput},
	{ErrCancelled, KindCancelled},
	{context.Canceled, KindCancelled},
	{ErrBadPassword, KindBadPassword},
	{ErrPartialBatchFailure, KindPartialBatchFailure},
	{ErrInvalidSettings, KindInvalidSettings},
}

// KindOf maps an error to its ErrorKind. Errors that match no known sentinel are I/O failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindIOFailure
}

// Cancelled wraps the cause of a cancellation so that it matches ErrCancelled.
func Cancelled(cause error) error {
	if cause == nil || errors.Is(cause, ErrCancelled) {
		return ErrCancelled
	}
	return errors.Join(ErrCancelled, cause)
}

// CheckCancelled returns a Cancelled error once ctx is done. It is called at page and
// file boundaries only.
func CheckCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Cancelled(err)
	}
	return nil
}
