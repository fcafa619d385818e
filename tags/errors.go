package tags

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrScopeNotFound   = errors.New("scope not found")
	ErrStorage         = errors.New("storage failure")
)

// type ArgError struct {{{

// Returned when an operation is given something it can not work with.
//
// Always raised before any work is done.
type ArgError struct {
	// Name of the operation that was called, such as "AddTags"
	Op string

	// The parameter at fault.
	Param string

	Msg string
} // }}}

// func ArgError.Error {{{

func (e *ArgError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}

	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Param, e.Msg)
} // }}}

func (e *ArgError) Unwrap() error { return ErrInvalidArgument }

// func ArgErr {{{

func ArgErr(op, param, format string, args ...interface{}) error {
	return &ArgError{
		Op:    op,
		Param: param,
		Msg:   fmt.Sprintf(format, args...),
	}
} // }}}

// type StorageError struct {{{

// Wraps an error from the document store.
//
// The store error itself is kept as is, errors.Is() works for both ErrStorage and the original error.
type StorageError struct {
	Op     string
	Entity Entity
	Err    error
} // }}}

// func StorageError.Error {{{

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s(%s/%s): %s", e.Op, e.Entity.Scope, e.Entity.ID, e.Err)
} // }}}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// func ScopeErr {{{

// Returns an error wrapping ErrScopeNotFound for the given scope.
func ScopeErr(op, scope string) error {
	return fmt.Errorf("%s: scope %q: %w", op, scope, ErrScopeNotFound)
} // }}}
