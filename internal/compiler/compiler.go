// Package compiler is the boundary to the plugin source compiler. The sandbox
// only ever sees the compiled script text.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Diagnostic is a compiler message about the source.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// Result is the output of a compile.
type Result struct {
	Script      string
	Diagnostics []Diagnostic
}

// Compiler turns plugin source into a CommonJS script.
type Compiler interface {
	Compile(ctx context.Context, name, source string) (Result, error)
}

// Passthrough accepts sources that are already compiled JavaScript.
type Passthrough struct{}

// Compile implements Compiler.
func (Passthrough) Compile(_ context.Context, name, source string) (Result, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case "", ".js", ".cjs":
	default:
		return Result{}, fmt.Errorf("compiler: %s: only compiled .js plugins are supported", name)
	}

	var diags []Diagnostic
	if strings.TrimSpace(source) == "" {
		diags = append(diags, Diagnostic{Severity: "warning", Message: "plugin source is empty"})
	}
	return Result{Script: source, Diagnostics: diags}, nil
}

// CompileFile reads path and compiles it with c.
func CompileFile(ctx context.Context, c Compiler, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("compiler: failed to read plugin: %w", err)
	}
	return c.Compile(ctx, filepath.Base(path), string(data))
}
