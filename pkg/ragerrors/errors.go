// Package ragerrors defines the error taxonomy shared by every core
// component, replacing the ad-hoc per-package error types of the
// teacher with a single discriminated kind plus wrapped cause.
package ragerrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the recovery policy for an Error (see spec §7).
type Kind string

const (
	ConfigInvalid          Kind = "ConfigInvalid"
	EmbeddingUnavailable    Kind = "EmbeddingUnavailable"
	VisionModelMissing      Kind = "VisionModelMissing"
	EmbeddingInputInvalid   Kind = "EmbeddingInputInvalid"
	QueryEmpty              Kind = "QueryEmpty"
	QuestionEmpty            Kind = "QuestionEmpty"
	UnsupportedFileType      Kind = "UnsupportedFileType"
	FileEmpty                Kind = "FileEmpty"
	EncodingUnknown          Kind = "EncodingUnknown"
	ImageTooLarge            Kind = "ImageTooLarge"
	ImageInvalid             Kind = "ImageInvalid"
	LengthMismatch           Kind = "LengthMismatch"
	MissingDeletePredicate   Kind = "MissingDeletePredicate"
	RetrievalFailed          Kind = "RetrievalFailed"
	GenerationFailed         Kind = "GenerationFailed"
	StoreClosed              Kind = "StoreClosed"
	Cancelled                Kind = "Cancelled"
	CaptionEmpty             Kind = "CaptionEmpty"
	DimensionMismatch        Kind = "DimensionMismatch"
	NotFound                 Kind = "NotFound"
)

// Error is the single error type used across the core. Op names the
// operation that failed (e.g. "VectorStore.Upsert"); Err is the wrapped
// cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is supports kind matching such as
// errors.Is(err, ragerrors.New(ragerrors.ConfigInvalid, "", "", nil)):
// a Kind is not itself an error, so the target wraps it in an *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Wrap is a convenience for New(kind, op, "", cause).
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// BatchResult summarizes a batch ingestion operation (spec §7): batch
// operations isolate per-item failures and report a summary rather than
// failing the whole call when at least one item succeeded.
type BatchResult struct {
	Added   int
	Skipped int
	Errors  []error
}

// Success reports whether the batch should be considered successful —
// true as long as at least one item was added.
func (b BatchResult) Success() bool {
	return b.Added > 0
}
