package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/models"
)

const diskRules = `rules:
  - id: disk
    match:
      level: critical
      title_contains: ["disk", "volume"]
    hints: ["Check docker image pruning on the host", "Inspect /var/lib/docker usage"]
  - id: harbor
    match:
      field: registry
    hints: ["Harbor runs as a compose stack under /opt/harbor"]
`

func TestRunbooksHints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbooks.yaml")
	if err := os.WriteFile(path, []byte(diskRules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	books, err := NewRunbooks(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("new runbooks: %v", err)
	}

	hints := books.Hints(models.AlertEvent{Title: "Disk full on hephaestus", Level: models.LevelCritical})
	if len(hints) != 2 {
		t.Fatalf("expected 2 disk hints, got %v", hints)
	}

	hints = books.Hints(models.AlertEvent{Title: "Disk full", Level: models.LevelWarning})
	if len(hints) != 0 {
		t.Fatalf("level mismatch must not match, got %v", hints)
	}

	hints = books.Hints(models.AlertEvent{
		Title:  "push failing",
		Level:  models.LevelInfo,
		Fields: []models.AlertField{{Name: "Registry", Value: "harbor"}},
	})
	if len(hints) != 1 {
		t.Fatalf("expected field rule to match, got %v", hints)
	}
}

func TestRunbooksEmptyPathAndMissingFile(t *testing.T) {
	books, err := NewRunbooks("", nil)
	if err != nil || books != nil {
		t.Fatalf("expected nil runbooks for empty path, got %v %v", books, err)
	}
	if hints := books.Hints(models.AlertEvent{Title: "x"}); hints != nil {
		t.Fatalf("nil runbooks must yield no hints")
	}

	books, err = NewRunbooks(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if books.Len() != 0 {
		t.Fatalf("expected empty rule set")
	}
}

func TestRunbooksWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbooks.yaml")
	books, err := NewRunbooks(path, nil)
	if err != nil {
		t.Fatalf("new runbooks: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- books.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for books.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("rules were not reloaded")
		}
		if err := os.WriteFile(path, []byte(diskRules), 0o644); err != nil {
			t.Fatalf("write rules: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned error: %v", err)
	}
}
