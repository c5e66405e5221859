// Package hostapi builds the capability object handed to sandboxed plugins.
// The plugin sees only this object; it never reaches ambient host APIs.
package hostapi

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"connkit/internal/buffercache"
)

// SDKVersion is the host SDK version exposed to plugins as api.sdkVersion.
const SDKVersion = "1.4.0"

// Config holds configuration for Host APIs.
type Config struct {
	// HTTPAllowlist is the list of allowed HTTP domains (empty = allow all).
	HTTPAllowlist []string
	// FetchTimeout bounds a single real network call.
	FetchTimeout time.Duration
	// SDKVersion overrides the version reported to plugins.
	SDKVersion string
}

// DefaultConfig returns default Host API configuration.
func DefaultConfig() Config {
	return Config{
		HTTPAllowlist: nil,
		FetchTimeout:  30 * time.Second,
		SDKVersion:    SDKVersion,
	}
}

// Scheduler settles guest promises on the VM goroutine.
type Scheduler interface {
	// Go runs work on another goroutine and then runs settle on the VM goroutine.
	// An error from settle is reported to whoever is pumping.
	Go(work func() (any, error), settle func(any, error) error)
	// Defer queues settle to run on the VM goroutine at the next pump.
	Defer(settle func() error)
}

// Context holds the execution context for Host APIs.
type Context struct {
	Ctx        context.Context
	Logger     zerolog.Logger
	PluginName string
	SessionID  string
	Options    map[string]any
	Cache      buffercache.Store
	Scheduler  Scheduler
	Config     Config

	mu          sync.Mutex
	interceptor Interceptor
	transport   Transport
}

// SetInterceptor routes every subsequent fetch to ic instead of the network.
func (c *Context) SetInterceptor(ic Interceptor) {
	c.mu.Lock()
	c.interceptor = ic
	c.mu.Unlock()
}

// ClearInterceptor restores real network access.
func (c *Context) ClearInterceptor() {
	c.SetInterceptor(nil)
}

// Interceptor returns the active interceptor, if any.
func (c *Context) Interceptor() Interceptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interceptor
}

// SetTransport replaces the real network transport.
func (c *Context) SetTransport(t Transport) {
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
}

func (c *Context) getTransport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		c.transport = NewNetworkTransport(c.Config)
	}
	return c.transport
}

// capabilityFuncs lists the function members removed by Unregister.
var capabilityFuncs = []string{"fetch", "logError", "readBuffer"}

// Register builds the capability object and installs the console global.
// The returned object is meant to be passed to the plugin constructor.
func Register(vm *goja.Runtime, hctx *Context) (*goja.Object, error) {
	api := vm.NewObject()

	options, err := frozenValue(vm, hctx.Options)
	if err != nil {
		return nil, err
	}
	_ = api.Set("options", options)

	platform, err := frozenValue(vm, map[string]any{
		"os":     runtime.GOOS,
		"arch":   runtime.GOARCH,
		"engine": "goja",
	})
	if err != nil {
		return nil, err
	}
	_ = api.Set("platform", platform)

	version := hctx.Config.SDKVersion
	if version == "" {
		version = SDKVersion
	}
	_ = api.Set("sdkVersion", version)

	if err := registerFetch(vm, api, hctx); err != nil {
		return nil, err
	}
	if err := registerBuffers(vm, api, hctx); err != nil {
		return nil, err
	}
	if err := registerLog(vm, api, hctx); err != nil {
		return nil, err
	}

	return api, nil
}

// Unregister strips the capability functions from api and removes console,
// so a plugin that kept a reference can no longer reach the host.
func Unregister(vm *goja.Runtime, api *goja.Object) {
	if api != nil {
		for _, name := range capabilityFuncs {
			_ = api.Delete(name)
		}
	}
	_ = vm.GlobalObject().Delete("console")
}

// frozenValue converts v to a JS object and applies Object.freeze.
func frozenValue(vm *goja.Runtime, v map[string]any) (goja.Value, error) {
	if v == nil {
		v = map[string]any{}
	}
	obj := vm.NewObject()
	for k, val := range v {
		if err := obj.Set(k, val); err != nil {
			return nil, err
		}
	}

	freeze, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze"))
	if !ok {
		return obj, nil
	}
	return freeze(goja.Undefined(), obj)
}
