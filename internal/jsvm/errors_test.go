package jsvm

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{ErrTimeout, "jsvm: execution timeout"},
		{ErrDisposed, "jsvm: context used after dispose"},
		{ErrBusy, "jsvm: context is not reentrant"},
		{ErrModuleNotFound, "jsvm: module not found"},
		{&ScriptSyntaxError{File: "plugin.js", Message: "unexpected token"}, "jsvm: syntax error in plugin.js: unexpected token"},
		{&ScriptSyntaxError{Message: "unexpected token"}, "jsvm: syntax error: unexpected token"},
		{&GuestError{Message: "Error: boom"}, "jsvm: guest execution error: Error: boom"},
	}

	for _, tt := range tests {
		if tt.err.Error() != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
		}
	}
}

func TestLoadErrorUnwrap(t *testing.T) {
	cause := &GuestError{Message: "Error: nope"}
	err := &LoadError{Stage: "construct", Cause: cause}

	if !errors.Is(err, ErrLoad) {
		t.Error("LoadError should match ErrLoad sentinel")
	}
	if !errors.Is(err, ErrGuest) {
		t.Error("LoadError should unwrap to its guest cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause error")
	}
}

func TestWrapError(t *testing.T) {
	vm := goja.New()

	_, err := vm.RunString(`throw new Error("boom")`)
	wrapped := wrapError(err)
	var guest *GuestError
	if !errors.As(wrapped, &guest) {
		t.Fatalf("expected GuestError, got %T", wrapped)
	}
	if guest.Message != "Error: boom" {
		t.Errorf("message = %q", guest.Message)
	}

	_, err = goja.Compile("bad.js", "function (", false)
	if !errors.Is(wrapError(err), ErrScriptSyntax) {
		t.Errorf("expected ScriptSyntaxError, got %v", wrapError(err))
	}

	vm.Interrupt(ErrTimeout)
	_, err = vm.RunString(`while (true) {}`)
	if !errors.Is(wrapError(err), ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", wrapError(err))
	}

	plain := errors.New("plain")
	if wrapError(plain) != plain {
		t.Error("unknown errors should pass through")
	}
}
