package hostapi

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"connkit/internal/jsvmerr"
)

// registerBuffers registers api.readBuffer, which materializes a cached payload
// as an ArrayBuffer. It accepts either a handle object or a bare id.
func registerBuffers(vm *goja.Runtime, api *goja.Object, hctx *Context) error {
	_ = api.Set("readBuffer", func(call goja.FunctionCall) goja.Value {
		id := handleID(call.Argument(0))
		if id == "" {
			panic(vm.NewTypeError("readBuffer: handle or id is required"))
		}
		if hctx.Cache == nil {
			panic(vm.NewGoError(jsvmerr.ErrBufferNotFound))
		}

		data, err := hctx.Cache.Get(id)
		if errors.Is(err, jsvmerr.ErrBufferNotFound) {
			panic(vm.NewGoError(fmt.Errorf("readBuffer: %w: %s", err, id)))
		}
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(vm.NewArrayBuffer(data))
	})
	return nil
}

func handleID(v goja.Value) string {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if obj, ok := v.(*goja.Object); ok {
		if id := obj.Get("id"); id != nil && !goja.IsUndefined(id) {
			return id.String()
		}
		return ""
	}
	return v.String()
}
