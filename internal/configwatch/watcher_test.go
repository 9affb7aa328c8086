package configwatch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherLoadsOnStartAndReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(testDocYAML), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	w, err := NewWatcher(path, discardLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	seen := make(chan *Document, 4)
	w.OnChange(func(doc *Document) { seen <- doc })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case doc := <-seen:
		if len(doc.Clusters) != 1 {
			t.Fatalf("expected 1 cluster on initial load, got %d", len(doc.Clusters))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial load")
	}

	updated := testDocYAML + "\n# touch\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewriting fixture: %v", err)
	}

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload after write")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

func TestNewWatcherFailsForMissingDirectory(t *testing.T) {
	if _, err := NewWatcher("/no/such/dir/config.yaml", discardLogger()); err == nil {
		t.Fatal("expected an error when the containing directory does not exist")
	}
}
