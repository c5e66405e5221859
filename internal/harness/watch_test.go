package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcherRerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	plugin := filepath.Join(dir, "plugin.js")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(plugin, []byte("v1"), 0644))

	w, err := NewWatcher([]string{plugin}, 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	select {
	case <-changed:
		t.Fatal("unwatched file triggered a rerun")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(plugin, []byte("v2"), 0644))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no rerun after change")
	}

	cancel()
	require.NoError(t, <-done)
}
