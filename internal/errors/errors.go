package errors

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable class of a failure.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindNetwork          Kind = "network"
	KindAuth             Kind = "auth"
	KindNotAVcsRepo      Kind = "notAVcsRepo"
	KindNotConfigured    Kind = "notConfigured"
	KindConflict         Kind = "conflict"
	KindBusy             Kind = "busy"
	KindIO               Kind = "ioError"
	KindRejected         Kind = "rejected"
	KindNotAutoMergeable Kind = "notAutoMergeable"
	// KindInvalid marks a request the engine cannot act on, such as a
	// resolution with no open conflict.
	KindInvalid Kind = "invalidRequest"
)

// Sentinel errors that can be used with errors.Is() for error type checking
var (
	// ErrBusy indicates another orchestration holds the repository
	ErrBusy = errors.New("another sync operation is already in progress")

	// ErrNoConflict indicates a resolution was requested with no open conflict
	ErrNoConflict = errors.New("no conflict in progress")

	// ErrNotAutoMergeable indicates Smart-Merge was refused
	ErrNotAutoMergeable = errors.New("conflicts are not auto-mergeable")

	// ErrNotCatalogFile indicates the path is not a configured catalog file
	ErrNotCatalogFile = errors.New("not a catalog file")

	// ErrRecordNotFound indicates no record carries the requested id
	ErrRecordNotFound = errors.New("record not found")

	// ErrPathNotFound indicates a revision does not contain the requested path
	ErrPathNotFound = errors.New("path not found in revision")
)

// Error is a classified failure of an engine or git operation.
type Error struct {
	Kind   Kind
	Op     string
	Err    error
	Output string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed [%s]", e.Op, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error for op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewWithOutput creates a classified error carrying command output.
func NewWithOutput(kind Kind, op string, err error, output string) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Output: output}
}

// Busy reports that op was rejected because the repository is locked.
func Busy(op string) *Error {
	return New(KindBusy, op, ErrBusy)
}

// IO wraps a catalog file read, write or parse failure.
func IO(op string, err error) *Error {
	return New(KindIO, op, err)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrNotAutoMergeable):
		return KindNotAutoMergeable
	case errors.Is(err, ErrNoConflict), errors.Is(err, ErrNotCatalogFile), errors.Is(err, ErrRecordNotFound):
		return KindInvalid
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err may be retried on a read path.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// Wrap wraps an error with a message for better context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message for better context.
func Wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether target is in err's chain.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Errorf creates a new formatted error.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
