package jsvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"connkit/internal/jsvmerr"
)

// EvalImmediate runs code and returns its value. A promise result is unwrapped
// when it has already settled; a pending one returns ErrNotSettled. A guest
// throw or rejection is returned as a *GuestError.
func (c *Context) EvalImmediate(code string) (any, error) {
	unlock, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	return c.evalImmediate(code)
}

func (c *Context) evalImmediate(code string) (any, error) {
	_, stop := c.watch(context.Background())
	defer stop()

	v, err := c.run(code)
	if err != nil {
		return nil, err
	}

	if p, ok := v.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStatePending:
			return nil, ErrNotSettled
		case goja.PromiseStateRejected:
			return nil, &jsvmerr.GuestError{Message: guestMessage(p.Result())}
		default:
			v = p.Result()
		}
	}
	return exportValue(v), nil
}

// Future is the host view of a guest promise returned by EvalDeferred.
type Future struct {
	c       *Context
	promise *goja.Promise
	value   goja.Value

	settled bool
	result  any
	err     error
}

// EvalDeferred runs code and returns a Future for its result. Non-promise
// results produce a Future that is already settled.
func (c *Context) EvalDeferred(code string) (*Future, error) {
	unlock, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, stop := c.watch(context.Background())
	defer stop()

	v, err := c.run(code)
	if err != nil {
		return nil, err
	}

	f := &Future{c: c}
	if p, ok := v.Export().(*goja.Promise); ok {
		f.promise = p
	} else {
		f.value = v
	}
	return f, nil
}

// Await pumps the host event loop until the guest promise settles, drains the
// guest job queue once more, and then reads the result. A promise that is
// still pending when no host work is left returns ErrStalled.
func (f *Future) Await(ctx context.Context) (any, error) {
	c := f.c
	unlock, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if f.settled {
		return f.result, f.err
	}

	execCtx, stop := c.watch(ctx)
	defer stop()

	if err := f.settle(execCtx); err != nil {
		return nil, err
	}
	if err := c.drainPendingJobs(); err != nil {
		return nil, err
	}

	f.result, f.err = f.read()
	f.settled = true
	return f.result, f.err
}

// settle runs host callbacks until the promise leaves the pending state.
func (f *Future) settle(ctx context.Context) error {
	if f.promise == nil {
		return nil
	}

	for f.promise.State() == goja.PromiseStatePending {
		if err := ctx.Err(); err != nil {
			return contextError(err)
		}
		progressed, err := f.c.loop.pump(ctx)
		if err != nil {
			return contextError(wrapError(err))
		}
		if !progressed && f.promise.State() == goja.PromiseStatePending {
			return ErrStalled
		}
	}
	return nil
}

func (f *Future) read() (any, error) {
	if f.promise == nil {
		return exportValue(f.value), nil
	}
	if f.promise.State() == goja.PromiseStateRejected {
		return nil, &jsvmerr.GuestError{Message: guestMessage(f.promise.Result())}
	}
	return exportValue(f.promise.Result()), nil
}

// drainPendingJobs flushes the guest job queue. goja runs queued promise jobs
// whenever control returns to the top level, so running an empty program is
// enough to let continuations chained after a settle run before the host
// reads the value.
func (c *Context) drainPendingJobs() error {
	if _, err := c.vm.RunProgram(c.drain); err != nil {
		return wrapError(err)
	}
	return nil
}

// run compiles and runs code at the top level.
func (c *Context) run(code string) (goja.Value, error) {
	prg, err := goja.Compile("<eval>", code, false)
	if err != nil {
		return nil, wrapError(err)
	}
	v, err := c.vm.RunProgram(prg)
	if err != nil {
		return nil, wrapError(err)
	}
	return v, nil
}

// CallExpr builds a call of the loaded plugin's method with JSON-encoded
// positional arguments.
func CallExpr(method string, args ...any) (string, error) {
	name, err := json.Marshal(method)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		parts[i] = string(b)
	}
	return fmt.Sprintf("%s[%s](%s)", PluginGlobal, name, strings.Join(parts, ", ")), nil
}

// wrapError converts goja errors to structured errors.
func wrapError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok && errors.Is(cause, ErrTimeout) {
			return ErrTimeout
		}
		return fmt.Errorf("interrupted: %v", interrupted.Value())
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &jsvmerr.ScriptSyntaxError{Message: syntax.Error()}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &jsvmerr.GuestError{Message: guestMessage(exception.Value())}
	}

	return err
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// guestMessage stringifies a thrown guest value.
func guestMessage(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	return v.String()
}

// exportValue converts goja values to Go values.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
