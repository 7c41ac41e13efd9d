package failure

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies why an import, or one step of it, did not succeed.
type Kind string

const (
	KindFormatUnrecognized    Kind = "format_unrecognized"
	KindMissingRequiredField  Kind = "missing_required_field"
	KindNoResolvableTestCases Kind = "no_resolvable_test_cases"
	KindTransport             Kind = "transport_failure"
	KindPartialRecord         Kind = "partial_record_failure"
	KindReportUnreadable      Kind = "report_unreadable"
	KindNoResults             Kind = "no_results"
)

type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return e.cause.Error()
}

func (e *kindError) Unwrap() error {
	return e.cause
}

func (e *kindError) Kind() Kind {
	return e.kind
}

// New creates an error of the given kind with a formatted message and a stack.
func New(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, cause: pkgerrors.Errorf(format, args...)}
}

// Wrap annotates err with msg and tags it with kind. A nil err stays nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: pkgerrors.Wrap(err, msg)}
}

// KindOf returns the outermost kind attached to err, or "" if none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}

// Is reports whether any error in err's chain carries kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ke *kindError
		if !errors.As(err, &ke) {
			return false
		}
		if ke.kind == kind {
			return true
		}
		err = ke.cause
	}
	return false
}
