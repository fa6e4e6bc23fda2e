// Package errors defines the error taxonomy shared by the sync pipeline.
//
// Operations that cross a package boundary (git, cloud transfer, config)
// wrap their failures in an OperationError so the pipeline can report which
// operation failed without parsing error text. Absence, such as a repository
// that has not been cloned yet, is never reported through this package; it
// is a plain boolean outcome.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrRepositoryNotFound reports that no working copy exists at the
	// configured path when the caller required one.
	ErrRepositoryNotFound = stderrors.New("no existing repository found")

	// ErrUnknownMode reports a run mode outside all|clone|update|sync.
	ErrUnknownMode = stderrors.New("unknown run mode")

	// ErrEmptyRcloneConfig reports rclone config content that is empty.
	ErrEmptyRcloneConfig = stderrors.New("rclone config content is empty")

	// ErrMissingSetting reports a required setting without a value.
	ErrMissingSetting = stderrors.New("missing required setting")
)

// OperationError represents an error that occurred during a named operation
type OperationError struct {
	Op  string // The operation being performed, e.g. git.pull or cloud.sync
	Err error  // The underlying error
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is matches another OperationError with the same Op.
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return e.Op == t.Op
}

// New creates a new OperationError
func New(op string, err error) *OperationError {
	return &OperationError{
		Op:  op,
		Err: err,
	}
}

// Op returns the operation of the outermost OperationError in err's chain,
// or an empty string.
func Op(err error) string {
	var opErr *OperationError
	if stderrors.As(err, &opErr) {
		return opErr.Op
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
