package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"connkit/internal/compiler"
)

// pluginName derives a display name from a plugin path.
func pluginName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// compilePlugin reads and compiles the plugin at path, logging diagnostics.
func compilePlugin(ctx context.Context, cliCtx *CLIContext, path string) (string, error) {
	result, err := compiler.CompileFile(ctx, compiler.Passthrough{}, path)
	if err != nil {
		return "", err
	}
	for _, d := range result.Diagnostics {
		ev := cliCtx.Logger.Warn()
		if d.Severity == "error" {
			ev = cliCtx.Logger.Error()
		}
		ev.Str("plugin", path).Int("line", d.Line).Msg(d.Message)
		if d.Severity == "error" {
			return "", fmt.Errorf("compile %s: %s", path, d.Message)
		}
	}
	return result.Script, nil
}
