package cli

import (
	"sync"

	"connkit/internal/buffercache"
	"connkit/internal/config"
	"connkit/internal/jsvm"
	"connkit/internal/jsvm/hostapi"

	"github.com/rs/zerolog"
)

// CLIContext carries per-invocation state for commands.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
	Verbose    bool
	Quiet      bool

	cacheOnce sync.Once
	cache     buffercache.Store
	cacheErr  error
}

// NewCLIContext creates a CLIContext.
func NewCLIContext(cfg *config.Config, configPath string, log zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetCache opens the configured buffer cache on first use.
func (c *CLIContext) GetCache() (buffercache.Store, error) {
	c.cacheOnce.Do(func() {
		path, err := config.ExpandPath(c.Config.Cache.Path)
		if err != nil {
			c.cacheErr = err
			return
		}
		c.cache, c.cacheErr = buffercache.Open(c.Config.Cache.Driver, path)
	})
	return c.cache, c.cacheErr
}

// SandboxConfig converts the loaded settings into a sandbox configuration.
func (c *CLIContext) SandboxConfig(pluginName string) jsvm.Config {
	sc := jsvm.DefaultConfig()
	sc.PluginName = pluginName
	sc.Timeout = c.Config.Sandbox.Timeout
	if c.Config.Sandbox.MaxCallStack > 0 {
		sc.MaxCallStackSize = c.Config.Sandbox.MaxCallStack
	}

	api := hostapi.DefaultConfig()
	api.HTTPAllowlist = c.Config.Sandbox.HTTPAllowlist
	if c.Config.Sandbox.FetchTimeout > 0 {
		api.FetchTimeout = c.Config.Sandbox.FetchTimeout
	}
	if c.Config.Sandbox.SDKVersion != "" {
		api.SDKVersion = c.Config.Sandbox.SDKVersion
	}
	sc.HostAPI = api
	return sc
}

// Close releases resources opened by commands.
func (c *CLIContext) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
