package exitcodes

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, file not found, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// TestFailureError reports failed or errored tests (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// InfraError reports a broken event stream (exit code 3)
type InfraError struct {
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *InfraError) Unwrap() error {
	return e.Err
}

// NewInfraError creates a new InfraError
func NewInfraError(err error) *InfraError {
	return &InfraError{Err: err}
}

// Code maps an error returned by the application to its exit code.
// Unclassified errors are runtime errors.
func Code(err error) int {
	var (
		runtimeErr *RuntimeError
		testErr    *TestFailureError
		infraErr   *InfraError
	)
	switch {
	case err == nil:
		return Success
	case errors.As(err, &runtimeErr):
		return RuntimeErr
	case errors.As(err, &infraErr):
		return InfraErr
	case errors.As(err, &testErr):
		return TestFailure
	}
	return RuntimeErr
}
