// Package checkpoint provides a git-backed versioned snapshot store over a
// task's working directory. Every executor phase commits a checkpoint, so a
// failed phase can roll the directory back to the last known-good version.
package checkpoint

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one version in the checkpoint log.
type Entry struct {
	Version   string // Abbreviated commit hash.
	Message   string
	Timestamp string
}

// Store manages the versioned history of one working directory.
// The directory is exclusive to the executor handling that task;
// there are no concurrent writers.
type Store struct {
	workDir string
	logger  *slog.Logger
}

// New creates a Store for the given working directory.
func New(workDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{workDir: workDir, logger: logger}
}

// WorkDir returns the directory this store versions.
func (s *Store) WorkDir() string { return s.workDir }

// runGit runs a git command in the working directory.
func (s *Store) runGit(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.workDir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("git %s: %s", args[0], text)
	}
	return text, nil
}

// Init establishes the versioned history. Idempotent: re-running on an
// already-initialized directory is a no-op beyond ensuring config.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}

	if _, err := s.runGit("init"); err != nil {
		return err
	}
	s.runGit("config", "user.email", "garra@local")
	s.runGit("config", "user.name", "garra")

	gitignore := filepath.Join(s.workDir, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		os.WriteFile(gitignore, []byte("*.log\n.env\n"), 0o644)
	}

	// Initial marker commit so the history always has a root to roll back to.
	s.runGit("add", "-A")
	if _, err := s.runGit("commit", "-m", "Inicial: tarefa iniciada", "--allow-empty"); err != nil {
		// A fresh `git init` over an existing repo keeps the old history;
		// the commit may fail only when identity is broken.
		if !s.hasCommits() {
			return err
		}
	}

	s.logger.Info("checkpoint.initialized", "path", s.workDir)
	return nil
}

func (s *Store) hasCommits() bool {
	_, err := s.runGit("rev-parse", "HEAD")
	return err == nil
}

// Checkpoint snapshots the current working-directory state as a new version
// and returns its identifier. A checkpoint is created even when no files
// changed, so step boundaries stay traceable in the history.
func (s *Store) Checkpoint(message, tag string) (string, error) {
	if _, err := s.runGit("add", "-A"); err != nil {
		return "", err
	}

	stamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf("[%s] %s", stamp, message)
	if _, err := s.runGit("commit", "--allow-empty", "-m", msg); err != nil {
		return "", err
	}

	version, err := s.runGit("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	if tag != "" {
		s.runGit("tag", tag)
	}

	s.logger.Info("checkpoint.created", "version", short(version), "message", message)
	return version, nil
}

// Rollback reverts the working directory to n versions before the head.
func (s *Store) Rollback(n int) error {
	if _, err := s.runGit("reset", "--hard", fmt.Sprintf("HEAD~%d", n)); err != nil {
		return err
	}
	s.logger.Info("checkpoint.rollback", "steps", n)
	return nil
}

// RollbackTo reverts the working directory to an exact version.
func (s *Store) RollbackTo(version string) error {
	if _, err := s.runGit("reset", "--hard", version); err != nil {
		return err
	}
	s.logger.Info("checkpoint.rollback_to", "version", short(version))
	return nil
}

// Log returns up to max recent versions, newest first.
func (s *Store) Log(max int) ([]Entry, error) {
	out, err := s.runGit("log", fmt.Sprintf("--max-count=%d", max), "--format=%H|%s|%ai")
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) == 3 {
			entries = append(entries, Entry{
				Version:   short(parts[0]),
				Message:   parts[1],
				Timestamp: parts[2],
			})
		}
	}
	return entries, nil
}

// Diff returns the current uncommitted changes.
func (s *Store) Diff() (string, error) {
	return s.runGit("diff")
}

// Available reports whether git can be used on this system.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
