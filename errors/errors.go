// Package errors provides error handling for tabula.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Marks for classifying errors into the pipeline's failure taxonomy
//   - User-facing hints (e.g. a suggested chunk size)
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Classify a component error
//	var ErrEmptyInput = errors.Sentinel("empty input", errors.ErrInput)
//
//	// Check category
//	if errors.Is(err, errors.ErrInput) {
//	    // fatal, do not retry
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel creates a component sentinel error that also matches category
// under Is. Sentinels sharing a category stay distinct from each other.
func Sentinel(msg string, category error) error {
	return WithStack(Mark(New(msg), category))
}

// Failure taxonomy of a pipeline run.
// Component sentinels are marked with one of these so callers can branch on
// the category without knowing the component.
var (
	// ErrInput indicates malformed or empty source data. Fatal, never retried.
	ErrInput = New("input error")

	// ErrConfig indicates an invalid or incomplete processing spec. Fatal,
	// reported before any chunk runs.
	ErrConfig = New("config error")

	// ErrTransientService indicates a network failure, timeout or 5xx reply
	// from the generation service. Retried per chunk.
	ErrTransientService = New("transient service error")

	// ErrRateLimited indicates the generation service asked us to slow down.
	// Retried per chunk after an additional cooldown.
	ErrRateLimited = New("rate limited")

	// ErrResponseFormat indicates a reply that failed parsing or schema
	// validation. Retried per chunk with the same budget.
	ErrResponseFormat = New("response format error")

	// ErrChunkExhausted indicates a chunk spent its retry budget. Recorded as
	// a per-chunk failure, never fatal to the run.
	ErrChunkExhausted = New("chunk retry budget exhausted")

	// ErrAggregation indicates zero surviving chunks or a post-concatenation
	// schema mismatch. Fatal.
	ErrAggregation = New("aggregation error")
)

// Category returns a stable label for the taxonomy category of err, or
// "internal" when err carries none of the taxonomy marks.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrInput):
		return "input"
	case Is(err, ErrConfig):
		return "config"
	case Is(err, ErrChunkExhausted):
		return "chunk_exhausted"
	case Is(err, ErrRateLimited):
		return "rate_limited"
	case Is(err, ErrTransientService):
		return "transient_service"
	case Is(err, ErrResponseFormat):
		return "response_format"
	case Is(err, ErrAggregation):
		return "aggregation"
	default:
		return "internal"
	}
}

// IsRetryable reports whether err belongs to a category that a generation
// attempt may recover from by trying again.
func IsRetryable(err error) bool {
	return err != nil && IsAny(err, ErrTransientService, ErrRateLimited, ErrResponseFormat)
}
