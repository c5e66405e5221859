package jsvm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"connkit/internal/buffercache"
	"connkit/internal/jsvm/hostapi"
	"connkit/internal/jsvmerr"
)

// PluginGlobal is the global the constructed plugin instance is bound to.
const PluginGlobal = "__plugin"

// Config holds configuration for a sandbox Context.
type Config struct {
	// PluginName labels log lines from the plugin.
	PluginName string
	// Timeout bounds a single operation. Zero disables the watchdog.
	Timeout time.Duration
	// MaxCallStackSize limits guest recursion. Zero keeps goja's default.
	MaxCallStackSize int
	// HostAPI configures the capability object.
	HostAPI hostapi.Config
}

// DefaultConfig returns default sandbox configuration.
func DefaultConfig() Config {
	return Config{
		PluginName:       "plugin",
		Timeout:          0,
		MaxCallStackSize: 1024,
		HostAPI:          hostapi.DefaultConfig(),
	}
}

// Context owns one goja runtime with one loaded plugin instance. It is not
// reentrant: a second operation started while one is running gets ErrBusy.
// After Dispose every operation returns ErrDisposed.
type Context struct {
	config    Config
	logger    zerolog.Logger
	sessionID string

	vm      *goja.Runtime
	hctx    *hostapi.Context
	loop    *eventLoop
	arena   arena
	plugin  *goja.Object
	catalog *Catalog
	drain   *goja.Program

	mu       sync.Mutex
	disposed bool
	closed   atomic.Bool
}

// New creates a sandbox, installs the capability object built from options,
// serves script under PluginModule and constructs its default export with the
// capability object as the only argument. A nil cache gets a private
// in-memory store that is dropped on Dispose.
//
// Any failure is returned as a *LoadError and leaves nothing installed.
func New(cfg Config, script string, options map[string]any, cache buffercache.Store, logger zerolog.Logger) (_ *Context, err error) {
	c := &Context{
		config:    cfg,
		logger:    logger,
		sessionID: uuid.NewString(),
	}
	defer func() {
		if err != nil {
			c.arena.release()
		}
	}()

	if cache == nil {
		mem := buffercache.NewMemory()
		cache = mem
		c.arena.add(func() { _ = mem.Close() })
	}

	c.vm = goja.New()
	c.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if cfg.MaxCallStackSize > 0 {
		c.vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}

	c.loop = newEventLoop()
	c.arena.add(c.loop.close)

	hostCtx, cancel := context.WithCancel(context.Background())
	c.arena.add(cancel)

	c.hctx = &hostapi.Context{
		Ctx:        hostCtx,
		Logger:     logger,
		PluginName: cfg.PluginName,
		SessionID:  c.sessionID,
		Options:    options,
		Cache:      cache,
		Scheduler:  c.loop,
		Config:     cfg.HostAPI,
	}
	api, err := hostapi.Register(c.vm, c.hctx)
	if err != nil {
		return nil, &jsvmerr.LoadError{Stage: "install", Cause: err}
	}
	c.arena.add(func() { hostapi.Unregister(c.vm, api) })
	c.arena.add(c.hctx.ClearInterceptor)

	res := newResolver(c.vm, map[string]string{PluginModule: script})
	releaseRequire, err := res.install()
	if err != nil {
		return nil, &jsvmerr.LoadError{Stage: "install", Cause: err}
	}
	c.arena.add(releaseRequire)

	c.drain, err = goja.Compile("drain", "void 0", false)
	if err != nil {
		return nil, &jsvmerr.LoadError{Stage: "install", Cause: err}
	}

	if err := c.bootstrap(res, api); err != nil {
		return nil, err
	}

	sdkVersion := cfg.HostAPI.SDKVersion
	if sdkVersion == "" {
		sdkVersion = hostapi.SDKVersion
	}
	caps, err := c.evalImmediate(PluginGlobal + ".getCapabilities()")
	if err != nil {
		return nil, &jsvmerr.LoadError{Stage: "capabilities", Cause: err}
	}
	c.catalog, err = resolveCatalog(caps, sdkVersion)
	if err != nil {
		return nil, &jsvmerr.LoadError{Stage: "capabilities", Cause: err}
	}

	c.logger.Debug().
		Str("plugin", cfg.PluginName).
		Str("session", c.sessionID).
		Int("methods", c.catalog.Len()).
		Msg("plugin loaded")
	return c, nil
}

// bootstrap imports the plugin module and constructs its default export.
func (c *Context) bootstrap(res *resolver, api *goja.Object) error {
	_, stop := c.watch(context.Background())
	defer stop()

	exports, err := res.require(PluginModule)
	if err != nil {
		return &jsvmerr.LoadError{Stage: "import", Cause: wrapError(err)}
	}

	ctor, ok := goja.AssertConstructor(defaultExport(exports))
	if !ok {
		return &jsvmerr.LoadError{Stage: "construct", Cause: errors.New("default export is not a class")}
	}
	instance, err := ctor(nil, api)
	if err != nil {
		return &jsvmerr.LoadError{Stage: "construct", Cause: wrapError(err)}
	}

	if err := c.vm.Set(PluginGlobal, instance); err != nil {
		return &jsvmerr.LoadError{Stage: "construct", Cause: err}
	}
	c.plugin = instance
	c.arena.add(func() {
		_ = c.vm.GlobalObject().Delete(PluginGlobal)
		c.plugin = nil
	})
	return nil
}

// acquire takes the operation lock. The returned func releases it.
func (c *Context) acquire() (func(), error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrDisposed
	}
	return c.mu.Unlock, nil
}

// watch arms the timeout watchdog for one operation. The returned context
// carries the deadline so host-side waits end with it; the returned func must
// be called before the next operation starts.
func (c *Context) watch(ctx context.Context) (context.Context, func()) {
	if c.config.Timeout <= 0 {
		return ctx, func() {}
	}

	execCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-execCtx.Done():
			c.vm.Interrupt(ErrTimeout)
		case <-done:
		}
	}()

	return execCtx, func() {
		close(done)
		wg.Wait()
		cancel()
		c.vm.ClearInterrupt()
	}
}

// SetInterceptor routes fetch calls to ic until ClearInterceptor.
func (c *Context) SetInterceptor(ic hostapi.Interceptor) error {
	unlock, err := c.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	c.hctx.SetInterceptor(ic)
	return nil
}

// ClearInterceptor restores real network access for fetch.
func (c *Context) ClearInterceptor() error {
	return c.SetInterceptor(nil)
}

// Catalog returns the method catalog resolved at load time. It fails with
// ErrDisposed once Dispose has run.
func (c *Context) Catalog() (*Catalog, error) {
	if c.closed.Load() {
		return nil, ErrDisposed
	}
	return c.catalog, nil
}

// Cache returns the buffer store backing fetch and readBuffer. It fails with
// ErrDisposed once Dispose has run.
func (c *Context) Cache() (buffercache.Store, error) {
	if c.closed.Load() {
		return nil, ErrDisposed
	}
	return c.hctx.Cache, nil
}

// SessionID identifies this sandbox in log lines.
func (c *Context) SessionID() string {
	return c.sessionID
}

// Disposed reports whether Dispose has run.
func (c *Context) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Dispose releases everything the context installed: the capability
// functions, the require hook, the plugin handle and the event loop.
func (c *Context) Dispose() error {
	unlock, err := c.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	c.disposed = true
	c.closed.Store(true)
	c.arena.release()
	c.logger.Debug().Str("session", c.sessionID).Msg("sandbox disposed")
	return nil
}
