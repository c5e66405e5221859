// Package jsvmerr provides error types for the jsvm package.
// This package exists to avoid import cycles between jsvm and jsvm/hostapi.
package jsvmerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for sandbox operations.
var (
	// ErrTimeout indicates guest execution exceeded the configured timeout.
	ErrTimeout = errors.New("jsvm: execution timeout")

	// ErrDisposed indicates an operation on a context that was already disposed.
	ErrDisposed = errors.New("jsvm: context used after dispose")

	// ErrBusy indicates a second operation was attempted while one is in flight.
	ErrBusy = errors.New("jsvm: context is not reentrant")

	// ErrNotSettled indicates an immediate eval produced a promise that is still pending.
	ErrNotSettled = errors.New("jsvm: result is not settled")

	// ErrStalled indicates a guest promise is pending with no host work left to settle it.
	ErrStalled = errors.New("jsvm: guest promise can never settle")

	// ErrModuleNotFound indicates the requested module could not be found.
	ErrModuleNotFound = errors.New("jsvm: module not found")

	// ErrBufferNotFound indicates a buffer handle id that is not in the cache.
	ErrBufferNotFound = errors.New("jsvm: buffer not found")
)

// URLNotAllowedError indicates a real network call outside the allowlist.
type URLNotAllowedError struct {
	URL string
}

func (e *URLNotAllowedError) Error() string {
	return fmt.Sprintf("jsvm: url not allowed: %s", e.URL)
}

// Is implements errors.Is for URLNotAllowedError.
func (e *URLNotAllowedError) Is(target error) bool {
	_, ok := target.(*URLNotAllowedError)
	return ok
}

// ErrURLNotAllowed is a sentinel for errors.Is matching.
var ErrURLNotAllowed = &URLNotAllowedError{}

// ScriptSyntaxError indicates the plugin script failed to compile.
type ScriptSyntaxError struct {
	File    string
	Message string
}

func (e *ScriptSyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("jsvm: syntax error in %s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("jsvm: syntax error: %s", e.Message)
}

// Is implements errors.Is for ScriptSyntaxError.
func (e *ScriptSyntaxError) Is(target error) bool {
	_, ok := target.(*ScriptSyntaxError)
	return ok
}

// ErrScriptSyntax is a sentinel for errors.Is matching.
var ErrScriptSyntax = &ScriptSyntaxError{}

// LoadError reports that the plugin could not be imported or constructed.
// It is fatal for the invocation that created the context.
type LoadError struct {
	Stage string // resolve, import, construct, capabilities
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("jsvm: load failed during %s: %v", e.Stage, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for LoadError.
func (e *LoadError) Is(target error) bool {
	_, ok := target.(*LoadError)
	return ok
}

// ErrLoad is a sentinel for errors.Is matching.
var ErrLoad = &LoadError{}

// GuestError carries a value thrown inside the sandbox. The guest value is kept
// only in its stringified form.
type GuestError struct {
	Message string
}

func (e *GuestError) Error() string {
	return fmt.Sprintf("jsvm: guest execution error: %s", e.Message)
}

// Is implements errors.Is for GuestError.
func (e *GuestError) Is(target error) bool {
	_, ok := target.(*GuestError)
	return ok
}

// ErrGuest is a sentinel for errors.Is matching.
var ErrGuest = &GuestError{}
