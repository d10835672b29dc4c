// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package errors

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific error.
const (
	// ------------------------------------------
	// Errors related to database operations.
	// ------------------------------------------

	// ValueNotFound indicates no value found.
	ValueNotFound = ErrorKind("ValueNotFound")

	// ValueFound indicates an unexpected value found.
	ValueFound = ErrorKind("ValueFound")

	// DBOpen indicates a database open error.
	DBOpen = ErrorKind("DBOpen")

	// DBClose indicates a database close error.
	DBClose = ErrorKind("DBClose")

	// BucketNotFound indicates a missing bucket error.
	BucketNotFound = ErrorKind("BucketNotFound")

	// BucketCreate indicates a bucket creation error.
	BucketCreate = ErrorKind("BucketCreate")

	// PersistEntry indicates a database persistence error.
	PersistEntry = ErrorKind("PersistEntry")

	// DeleteEntry indicates a database entry delete error.
	DeleteEntry = ErrorKind("DeleteEntry")

	// FetchEntry indicates a database entry fetching error.
	FetchEntry = ErrorKind("FetchEntry")

	// Backup indicates a database backup error.
	Backup = ErrorKind("Backup")

	// Parse indicates a parsing error.
	Parse = ErrorKind("Parse")

	// Unsupported indicates unsupported functionality.
	Unsupported = ErrorKind("Unsupported")

	// ------------------------------------------
	// Errors related to stats engine operations.
	// ------------------------------------------

	// InvalidInput indicates a malformed caller-supplied value, rejected
	// before it reaches the store.
	InvalidInput = ErrorKind("InvalidInput")

	// NoSubmissions indicates an interval with no observed submissions yet.
	// This is a normal outcome for very recent intervals, not a hard failure.
	NoSubmissions = ErrorKind("NoSubmissions")

	// SourceUnreachable indicates the upstream submission source could not
	// be reached.
	SourceUnreachable = ErrorKind("SourceUnreachable")

	// SourceMalformed indicates the upstream submission source returned a
	// response that could not be decoded.
	SourceMalformed = ErrorKind("SourceMalformed")

	// LimitExceeded indicates a rate limit exhaustion error.
	LimitExceeded = ErrorKind("LimitExceeded")

	// Deadline indicates work cut off by an elapsed deadline.
	Deadline = ErrorKind("Deadline")

	// ContextCancelled indicates a context cancellation related error.
	ContextCancelled = ErrorKind("ContextCancelled")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error. It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// StatsError creates an Error given a set of arguments. This should only be
// used when creating errors related to the stats engine and its processes.
func StatsError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// DBError creates an Error given a set of arguments. This should only be
// used when creating errors related to the database.
func DBError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// SourceError creates an Error given a set of arguments. This should only be
// used when creating errors related to the upstream submission source.
func SourceError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
