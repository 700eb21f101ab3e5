package plugins

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName is returned when a module name is already registered
	ErrDuplicateName = errors.New("module name already registered")

	// ErrAllocation is returned when no record can be allocated for a module
	ErrAllocation = errors.New("module record could not be allocated")

	// ErrNotFound is returned when no module matches a dispatched request
	ErrNotFound = errors.New("module not found")

	// ErrUnsupported is returned when the module lacks the requested handler
	ErrUnsupported = errors.New("operation not supported by module")

	// ErrModulePanic is returned when a module handler panics
	ErrModulePanic = errors.New("module handler panicked")

	// ErrBadCount is returned when a module reports a byte count outside
	// the buffer it was given
	ErrBadCount = errors.New("module reported an invalid byte count")

	// ErrAlreadyInitialized is returned by a second Loader.Initialize
	ErrAlreadyInitialized = errors.New("module registry already initialized")
)

// ValidationError represents a rejected registration descriptor
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid descriptor: %s: %s", e.Field, e.Message)
}

// LibraryLoadError reports a library that could not be opened or lacks its
// entry symbol
type LibraryLoadError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *LibraryLoadError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("library %s: symbol %s: %v", e.Path, e.Symbol, e.Err)
	}
	return fmt.Sprintf("library %s: %v", e.Path, e.Err)
}

func (e *LibraryLoadError) Unwrap() error { return e.Err }

// RegistrationVerificationError reports a library whose entry point ran but
// registered nothing
type RegistrationVerificationError struct {
	Path string
}

func (e *RegistrationVerificationError) Error() string {
	return fmt.Sprintf("library %s: entry point registered no module", e.Path)
}
