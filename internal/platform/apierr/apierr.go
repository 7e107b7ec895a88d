package apierr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindTransientProvider Kind = "transient_provider"
	KindFormatCompliance  Kind = "format_compliance"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing source file. Never retried.
func NotFound(path string) *Error {
	return &Error{Kind: KindNotFound, Op: path, Err: errors.New("file does not exist")}
}

// Validation reports malformed input detected before any provider call.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Err: errors.New(msg)}
}

// Transient wraps the last provider failure once the retry budget is spent.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransientProvider, Op: op, Err: err}
}

func FormatCompliance(op string, err error) *Error {
	return &Error{Kind: KindFormatCompliance, Op: op, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Permanent reports errors that a retry can never fix.
func Permanent(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindValidation:
		return true
	}
	return false
}
