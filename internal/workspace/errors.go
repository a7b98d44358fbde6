package workspace

import (
	"errors"
	"fmt"
)

// ValidationError rejects an operation whose input is malformed. The store is
// left unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError rejects an operation referencing a stale id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// ErrAlreadySynced is returned by BeginSync once the workspace has left the
// Uninitialized phase. Callers treat it as "the first sync already ran".
var ErrAlreadySynced = errors.New("workspace sync already ran")

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
