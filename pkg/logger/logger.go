// Package logger wraps zerolog with a process-wide logger for the connkit CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // console, json
	File   string `json:"file" mapstructure:"file"`     // log file path, empty means stderr only
	Quiet  bool   `json:"-" mapstructure:"-"`           // drop everything below error
}

var (
	globalLogger zerolog.Logger
	logFile      *os.File
	stderr       io.Writer = os.Stderr
	mu           sync.RWMutex
	initialized  bool
)

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init replaces the global logger. A previously opened log file is closed.
func Init(config LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	level := parseLevel(config.Level)
	if config.Quiet {
		level = zerolog.ErrorLevel
	}

	var console io.Writer = stderr
	if strings.ToLower(config.Format) != "json" {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}
	}

	output := console
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", config.File, err)
		}
		logFile = f
		// The file always receives JSON lines.
		output = zerolog.MultiLevelWriter(console, f)
	}

	globalLogger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	initialized = true
	return nil
}

// Get returns the global logger. Before Init it logs warnings to stderr.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		return zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	}
	return globalLogger
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}

// Plugin returns a child logger tagged with the plugin under test.
func Plugin(name string) zerolog.Logger {
	return Get().With().Str("plugin", name).Logger()
}

// Close closes the log file if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		globalLogger = zerolog.New(stderr).Level(globalLogger.GetLevel()).With().Timestamp().Logger()
		return err
	}
	return nil
}
