// Package errs defines the error kinds surfaced by the framework.
// Callers match them with errors.Is; raise sites wrap them with
// fmt.Errorf("...: %w", ...) to add context.
package errs

import "errors"

var (
	// ErrNoType is returned when a value is assigned to a field before
	// the field's type has been declared.
	ErrNoType = errors.New("no type declared")

	// ErrWrongType is returned when a requested or assigned type is
	// incompatible with the declared or stored type.
	ErrWrongType = errors.New("wrong type")

	// ErrInvalid is returned when a value violates a field check, or a
	// newly added check rejects the field's existing value.
	ErrInvalid = errors.New("invalid value")

	// ErrNotReady is returned by Run when one or more non-optional
	// inputs or submodule slots are unbound.
	ErrNotReady = errors.New("module is not ready")

	// ErrSubmoduleNotReady is returned by Lock when a bound submodule
	// is not itself ready.
	ErrSubmoduleNotReady = errors.New("submodule is not ready")

	// ErrLocked is returned by mutators on a locked module instance.
	ErrLocked = errors.New("module is locked")

	// ErrNoModule is returned when an instance has no bound
	// implementation.
	ErrNoModule = errors.New("module does not contain an implementation")

	// ErrNotFound is returned on lookup of an absent key.
	ErrNotFound = errors.New("key not found")

	// ErrBackend is returned when an underlying cache storage operation
	// fails.
	ErrBackend = errors.New("cache backend error")
)
