package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testStore initializes a checkpoint store in a temp directory.
func testStore(t *testing.T) *Store {
	t.Helper()
	if !Available() {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestInit_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Init(); err != nil {
		t.Fatalf("second init: %v", err)
	}
}

func TestCheckpoint_NoChangesStillCreatesVersion(t *testing.T) {
	s := testStore(t)

	v1, err := s.Checkpoint("primeiro marco", "")
	if err != nil {
		t.Fatalf("checkpoint 1: %v", err)
	}
	v2, err := s.Checkpoint("segundo marco", "")
	if err != nil {
		t.Fatalf("checkpoint 2: %v", err)
	}
	if v1 == v2 {
		t.Error("expected distinct version ids for back-to-back checkpoints")
	}

	entries, err := s.Log(10)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	// Init commit plus two checkpoints.
	if len(entries) != 3 {
		t.Errorf("expected 3 log entries, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Message, "segundo marco") {
		t.Errorf("newest entry should be last checkpoint, got %q", entries[0].Message)
	}
}

func TestRollback_RestoresPreviousState(t *testing.T) {
	s := testStore(t)
	dir := s.WorkDir()

	writeFile(t, dir, "report.txt", "versão A")
	if _, err := s.Checkpoint("A", ""); err != nil {
		t.Fatalf("checkpoint A: %v", err)
	}

	writeFile(t, dir, "report.txt", "versão B")
	if _, err := s.Checkpoint("B", ""); err != nil {
		t.Fatalf("checkpoint B: %v", err)
	}

	if err := s.Rollback(1); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	if err != nil {
		t.Fatalf("read after rollback: %v", err)
	}
	if string(data) != "versão A" {
		t.Errorf("expected state at checkpoint A, got %q", data)
	}
}

func TestRollbackTo_ExactVersion(t *testing.T) {
	s := testStore(t)
	dir := s.WorkDir()

	writeFile(t, dir, "data.txt", "one")
	v1, _ := s.Checkpoint("one", "")

	writeFile(t, dir, "data.txt", "two")
	s.Checkpoint("two", "")

	writeFile(t, dir, "data.txt", "three")
	s.Checkpoint("three", "")

	if err := s.RollbackTo(v1); err != nil {
		t.Fatalf("rollback to %s: %v", v1, err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "data.txt"))
	if string(data) != "one" {
		t.Errorf("expected content at v1, got %q", data)
	}
}

func TestCheckpoint_WithTag(t *testing.T) {
	s := testStore(t)

	if _, err := s.Checkpoint("concluído", "done-abc123"); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	out, err := s.runGit("tag", "--list")
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if !strings.Contains(out, "done-abc123") {
		t.Errorf("tag not created: %q", out)
	}
}
