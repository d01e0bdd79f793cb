package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tibiamarket/tracker/internal/models"
)

func TestWatchSnapshotReloadsOnRename(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(filepath.Join(dir, SnapshotFile))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchSnapshot(ctx, store) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// let the watcher register before the scanner publishes
	time.Sleep(50 * time.Millisecond)

	tmp := filepath.Join(dir, SnapshotTmpFile)
	require.NoError(t, os.WriteFile(tmp, []byte(strings.Join(models.SnapshotHeader, ",")+"\nsword,1500,1200,1600,1100,20,10,300,0.25,600\n"), 0o644))
	require.NoError(t, os.Rename(tmp, store.Path()))

	assert.Eventually(t, func() bool {
		rows, _, loaded := store.Status()
		return loaded && rows == 1
	}, 2*time.Second, 10*time.Millisecond)
}
