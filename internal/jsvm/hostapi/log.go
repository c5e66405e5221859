package hostapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// registerLog registers api.logError and the console global.
func registerLog(vm *goja.Runtime, api *goja.Object, hctx *Context) error {
	logger := hctx.Logger.With().
		Str("plugin", hctx.PluginName).
		Str("session", hctx.SessionID).
		Logger()

	_ = api.Set("logError", func(call goja.FunctionCall) goja.Value {
		logger.Error().Str("source", "plugin").Msg(formatLogMessage(call.Arguments))
		return goja.Undefined()
	})

	registerConsole(vm, logger)
	return nil
}

// formatLogMessage formats log arguments into a single message string.
func formatLogMessage(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg)
	}
	return strings.Join(parts, " ")
}

// formatValue converts a goja.Value to a string representation.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}

	switch val := v.Export().(type) {
	case string:
		return val
	case error:
		return val.Error()
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return v.String()
	}
}

// registerConsole adds a basic console object for compatibility.
func registerConsole(vm *goja.Runtime, logger zerolog.Logger) {
	console := vm.NewObject()

	levels := map[string]func() *zerolog.Event{
		"log":   logger.Info,
		"info":  logger.Info,
		"debug": logger.Debug,
		"warn":  logger.Warn,
		"error": logger.Error,
	}
	for name, event := range levels {
		event := event
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			event().Str("source", "console").Msg(formatLogMessage(call.Arguments))
			return goja.Undefined()
		})
	}

	_ = vm.Set("console", console)
}
