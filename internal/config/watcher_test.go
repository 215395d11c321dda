package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvconnected/camera-engine/internal/config"
)

func TestWatcher_ReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("umd:\n  port: 65000\n  max_tally: 32\n"), 0o644))

	reloaded := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(cfg *config.Config) error {
		reloaded <- cfg
		return nil
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("umd:\n  port: 65010\n  max_tally: 32\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 65010, cfg.UMD.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload within timeout")
	}
}
