// Package errs defines the tagged error kinds shared across the pipeline.
//
// Every component that can fail in a way the orchestrator needs to branch on
// returns (or wraps) a *Error carrying one of the Kind constants below,
// instead of relying on sentinel values or type assertions against
// component-specific error types.
package errs

import (
	"fmt"

	"github.com/go-errors/errors"
)

// Kind tags an error with the abstract category from the error-handling design.
type Kind string

const (
	InputNotFound       Kind = "InputNotFound"
	UnsupportedInput    Kind = "UnsupportedInputType"
	KeystoreNotFound    Kind = "KeystoreNotFound"
	Encrypted           Kind = "Encrypted"
	NoEmbeddedArchive   Kind = "NoEmbeddedArchive"
	InvalidMagic        Kind = "InvalidMagic"
	InvalidHeader       Kind = "InvalidHeader"
	TruncatedInput      Kind = "TruncatedInput"
	NotImplementedKind  Kind = "NotImplemented"
	NotFound            Kind = "NotFound"
	NetworkError        Kind = "NetworkError"
	HTTPError           Kind = "HTTPError"
	TimeoutError        Kind = "TimeoutError"
	ToolNotFound        Kind = "ToolNotFound"
	ToolFailed          Kind = "ToolFailed"
	JniLibsNotFound     Kind = "JniLibsNotFound"
	CompanionFetch      Kind = "CompanionFetch"
	TemplateUnavailable Kind = "TemplateUnavailable"
	ConversionFailed    Kind = "ConversionFailed"
)

// Error is the concrete error type returned at component boundaries. It
// always names its kind, the offending subject (a path, URL, or similar),
// and a short detail string - never a raw stack dump, which belongs to the
// logging layer.
type Error struct {
	Kind    Kind
	Subject string
	Detail  string
	Status  int // populated for HTTPError
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Kind, e.Subject, e.Status, e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Subject, e.Detail)
}

// New builds a tagged error ready to be wrapped with a stack trace at the
// boundary that reports it (see Wrap).
func New(kind Kind, subject, detail string) *Error {
	return &Error{Kind: kind, Subject: subject, Detail: detail}
}

// HTTP builds an HTTPError carrying the response status.
func HTTP(subject string, status int, detail string) *Error {
	return &Error{Kind: HTTPError, Subject: subject, Detail: detail, Status: status}
}

// Is makes errors.Is match any *Error target carrying the same Kind, e.g.
// errors.Is(err, errs.New(errs.Encrypted, "", "")); other targets never match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf unwraps err (including go-errors wrapped ones) looking for a *Error
// and returns its Kind, or "" if none is found.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}

// Wrap attaches a stack trace for top-level reporting without discarding the
// original tagged error's Kind (go-errors.Wrap on a nil error returns nil,
// worked around the same way lazydocker's WrapError does).
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 1)
}
