package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// A hung guest call hangs the run unless a timeout is configured.
	viper.SetDefault("sandbox.timeout", time.Duration(0))
	viper.SetDefault("sandbox.max_call_stack", 1024)
	viper.SetDefault("sandbox.fetch_timeout", 30*time.Second)
	viper.SetDefault("sandbox.http_allowlist", []string{})
	viper.SetDefault("sandbox.sdk_version", "")

	viper.SetDefault("cache.driver", "memory")
	viper.SetDefault("cache.path", "~/.connkit/buffers.db")

	viper.SetDefault("harness.strict_fetch_counts", false)
	viper.SetDefault("harness.watch_debounce", 100*time.Millisecond)

	viper.SetDefault("stress.iterations", 1000)
}

// Default returns the configuration produced by SetDefaults alone.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Sandbox: SandboxConfig{
			MaxCallStack:  1024,
			FetchTimeout:  30 * time.Second,
			HTTPAllowlist: []string{},
		},
		Cache:   CacheConfig{Driver: "memory", Path: "~/.connkit/buffers.db"},
		Harness: HarnessConfig{WatchDebounce: 100 * time.Millisecond},
		Stress:  StressConfig{Iterations: 1000},
	}
}
