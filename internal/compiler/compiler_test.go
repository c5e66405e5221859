package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthrough(t *testing.T) {
	res, err := Passthrough{}.Compile(context.Background(), "plugin.js", "exports.default = class {};")
	require.NoError(t, err)
	assert.Equal(t, "exports.default = class {};", res.Script)
	assert.Empty(t, res.Diagnostics)

	res, err = Passthrough{}.Compile(context.Background(), "plugin.js", "  ")
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "warning", res.Diagnostics[0].Severity)

	_, err = Passthrough{}.Compile(context.Background(), "plugin.ts", "export default class {}")
	assert.Error(t, err)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugin.js")
	require.NoError(t, os.WriteFile(path, []byte("module.exports = 1;"), 0644))

	res, err := CompileFile(context.Background(), Passthrough{}, path)
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1;", res.Script)

	_, err = CompileFile(context.Background(), Passthrough{}, filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}
