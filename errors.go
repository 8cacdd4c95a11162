// Package-level error taxonomy for pstore. Modeled on
// iamNilotpal-ignite/pkg/errors: a single wrapped-error type carrying a
// stable Code plus a details map, rather than bare sentinel errors, so
// callers can recover programmatically (errors.Is-style via Is) while
// still getting a human-readable message and structured context for logs.
package pstore

import (
	"errors"
	"fmt"
)

// Code identifies a category of failure from the error taxonomy (§6.2).
type Code string

const (
	CodeHeaderCorrupt                 Code = "header_corrupt"
	CodeHeaderVersionMismatch         Code = "header_version_mismatch"
	CodeFooterCorrupt                 Code = "footer_corrupt"
	CodeIndexCorrupt                  Code = "index_corrupt"
	CodeUnknownRevision                Code = "unknown_revision"
	CodeBadAlignment                  Code = "bad_alignment"
	CodeBadAddress                    Code = "bad_address"
	CodeReadOnlyAddress               Code = "read_only_address"
	CodeIndexNotLatestRevision        Code = "index_not_latest_revision"
	CodeTransactionOnReadOnlyDatabase Code = "transaction_on_read_only_database"
	CodeCannotAllocateAfterCommit     Code = "cannot_allocate_after_commit"
	CodeDidNotReadRequestedBytes      Code = "did_not_read_number_of_bytes_requested"
	CodeUUIDParseError                Code = "uuid_parse_error"
	CodeStoreClosed                   Code = "store_closed"

	// Exchange-only codes (§6.3).
	CodeUnknownTransactionObjectKey Code = "unknown_transaction_object_key"
	CodeBadUUID                     Code = "bad_uuid"
	CodeRootObjectIncomplete        Code = "root_object_was_incomplete"
)

// Category groups codes the way spec.md §7 does: pstore, romfs, exchange.
// romfs is out of scope (§1 Non-goals) so no romfs codes exist here.
type Category string

const (
	CategoryPStore   Category = "pstore"
	CategoryExchange Category = "exchange"
)

func (c Code) category() Category {
	switch c {
	case CodeUnknownTransactionObjectKey, CodeBadUUID, CodeRootObjectIncomplete:
		return CategoryExchange
	default:
		return CategoryPStore
	}
}

// Error is the concrete error type returned by every exported operation in
// this module that can fail. Op names the operation that failed (e.g.
// "Database.Sync"); Err, if non-nil, is the underlying cause.
type Error struct {
	Code    Code
	Op      string
	Err     error
	Details map[string]any
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// NewError constructs an *Error for callers outside this package (the
// exchange subpackage reports failures using this package's taxonomy
// rather than inventing its own).
func NewError(code Code, op string, err error) *Error {
	return newError(code, op, err)
}

// WithDetail attaches a structured context key/value and returns the
// receiver, mirroring ignite's fluent WithPath/WithDetail builder.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pstore: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("pstore: %s: %s", e.Op, e.Code)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a *Error carrying the given code. It is
// compatible with the standard errors.Is style of call site:
//
//	if pstore.Is(err, pstore.CodeUnknownRevision) { ... }
func Is(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// AsError extracts *Error from an error chain, if present.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrorCategory returns the failure category of err, or "" if err is not one of
// this package's errors.
func ErrorCategory(err error) Category {
	if pe, ok := AsError(err); ok {
		return pe.Code.category()
	}
	return ""
}

// ErrorDetails returns the structured context of err, or an empty map.
func ErrorDetails(err error) map[string]any {
	if pe, ok := AsError(err); ok && pe.Details != nil {
		return pe.Details
	}
	return map[string]any{}
}
