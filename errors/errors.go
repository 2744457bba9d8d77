package errors

import "errors"

// Sentinel errors for common failure conditions across the workflow.
var (
	// ErrRetrievalFailed indicates the initial retrieval call itself failed.
	// The query is aborted before any draft is produced.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrNoResults indicates retrieval succeeded but found nothing.
	ErrNoResults = errors.New("no results")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDecision indicates the loop observed a decision outcome
	// outside the recognised set.
	ErrUnknownDecision = errors.New("unknown decision outcome")

	// ErrNotFound indicates a stored record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
