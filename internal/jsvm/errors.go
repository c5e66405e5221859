// Package jsvm runs connector plugins inside an isolated goja runtime and
// bridges guest promises back to host code.
package jsvm

import "connkit/internal/jsvmerr"

// Re-export errors from jsvmerr package so callers only import jsvm.
var (
	ErrTimeout        = jsvmerr.ErrTimeout
	ErrDisposed       = jsvmerr.ErrDisposed
	ErrBusy           = jsvmerr.ErrBusy
	ErrNotSettled     = jsvmerr.ErrNotSettled
	ErrStalled        = jsvmerr.ErrStalled
	ErrModuleNotFound = jsvmerr.ErrModuleNotFound
	ErrScriptSyntax   = jsvmerr.ErrScriptSyntax
	ErrLoad           = jsvmerr.ErrLoad
	ErrGuest          = jsvmerr.ErrGuest
)

// Type aliases for error types.
type ScriptSyntaxError = jsvmerr.ScriptSyntaxError
type LoadError = jsvmerr.LoadError
type GuestError = jsvmerr.GuestError
