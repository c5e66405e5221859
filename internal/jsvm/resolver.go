package jsvm

import (
	"fmt"

	"github.com/dop251/goja"

	"connkit/internal/jsvmerr"
)

// PluginModule is the virtual module name the plugin script is served under.
const PluginModule = "connector:plugin"

// resolver is a minimal CommonJS require that only knows the modules it was
// given. Nothing is ever read from disk.
type resolver struct {
	vm      *goja.Runtime
	sources map[string]string
	modules map[string]*goja.Object
}

func newResolver(vm *goja.Runtime, sources map[string]string) *resolver {
	return &resolver{
		vm:      vm,
		sources: sources,
		modules: make(map[string]*goja.Object),
	}
}

// install defines the require global and returns its release func.
func (r *resolver) install() (func(), error) {
	err := r.vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		exports, err := r.require(name)
		if err != nil {
			panic(r.vm.NewGoError(err))
		}
		return exports
	})
	if err != nil {
		return nil, err
	}

	return func() {
		_ = r.vm.GlobalObject().Delete("require")
		r.modules = nil
	}, nil
}

// require evaluates a module once and returns its module.exports.
func (r *resolver) require(name string) (goja.Value, error) {
	if module, ok := r.modules[name]; ok {
		return module.Get("exports"), nil
	}

	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jsvmerr.ErrModuleNotFound, name)
	}

	prg, err := goja.Compile(name, "(function(exports, require, module) {"+src+"\n})", false)
	if err != nil {
		return nil, &jsvmerr.ScriptSyntaxError{File: name, Message: err.Error()}
	}

	wrapper, err := r.vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("module %s: wrapper is not callable", name)
	}

	module := r.vm.NewObject()
	exports := r.vm.NewObject()
	_ = module.Set("exports", exports)
	_ = module.Set("id", name)
	r.modules[name] = module

	if _, err := fn(goja.Undefined(), exports, r.vm.Get("require"), module); err != nil {
		delete(r.modules, name)
		return nil, err
	}
	return module.Get("exports"), nil
}

// defaultExport picks module.exports.default when present, else module.exports.
func defaultExport(exports goja.Value) goja.Value {
	if obj, ok := exports.(*goja.Object); ok {
		if def := obj.Get("default"); def != nil && !goja.IsUndefined(def) && !goja.IsNull(def) {
			return def
		}
	}
	return exports
}
