package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Harness HarnessConfig `mapstructure:"harness" yaml:"harness"`
	Stress  StressConfig  `mapstructure:"stress" yaml:"stress"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// SandboxConfig configures the plugin sandbox.
type SandboxConfig struct {
	// Timeout bounds one sandbox operation; 0 disables it.
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxCallStack  int           `mapstructure:"max_call_stack" yaml:"max_call_stack"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	HTTPAllowlist []string      `mapstructure:"http_allowlist" yaml:"http_allowlist"`
	SDKVersion    string        `mapstructure:"sdk_version" yaml:"sdk_version"`
}

// CacheConfig selects the buffer cache backend.
type CacheConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// HarnessConfig configures test runs.
type HarnessConfig struct {
	StrictFetchCounts bool          `mapstructure:"strict_fetch_counts" yaml:"strict_fetch_counts"`
	WatchDebounce     time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce"`
}

// StressConfig configures stress runs.
type StressConfig struct {
	Iterations int `mapstructure:"iterations" yaml:"iterations"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads configuration. Priority: ENV > config file > defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("CONNKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get returns the value for any key.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an integer value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a boolean value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set updates a key and persists it when a config file is in use.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current settings to the loaded config file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save writes all settings; the caller must hold mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes cfg to path as YAML.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Reset clears loaded state (used by tests).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// SetTestConfig replaces the global configuration (tests only).
func SetTestConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
