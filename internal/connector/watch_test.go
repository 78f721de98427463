package connector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkpipe/inkpipe/internal/observability"
)

func TestWatcher_WakesOnPDFCreation(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewWatcher(dir, 10*time.Millisecond, observability.Nop())
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropped.pdf"), []byte("%PDF"), 0o644))

	select {
	case <-watcher.Wake():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a wake after a PDF was created")
	}
}

func TestWatcher_IgnoresNonPDFFiles(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewWatcher(dir, 10*time.Millisecond, observability.Nop())
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o644))

	select {
	case <-watcher.Wake():
		t.Fatal("non-PDF files must not wake the loop")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_RejectsMissingFolder(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), 0, observability.Nop())
	require.Error(t, err)
}
