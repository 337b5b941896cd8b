package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepRemovesStaleEntries(t *testing.T) {
	base := t.TempDir()

	staleDir := filepath.Join(base, "scratch_1_100")
	if err := os.MkdirAll(staleDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	staleFile := filepath.Join(base, "upload_1_100.zip")
	if err := os.WriteFile(staleFile, []byte("zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	for _, path := range []string{staleDir, staleFile} {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	freshFile := filepath.Join(base, "upload_2_200.zip")
	if err := os.WriteFile(freshFile, []byte("zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sweeper := NewSweeper(base, time.Hour)
	if err := sweeper.Sweep(); err != nil {
		t.Fatalf("Sweep error: %v", err)
	}

	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Fatalf("stale scratch dir not removed")
	}
	if _, err := os.Stat(staleFile); !os.IsNotExist(err) {
		t.Fatalf("stale upload not removed")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Fatalf("fresh upload should survive: %v", err)
	}
}

func TestSweepMissingBaseDir(t *testing.T) {
	sweeper := NewSweeper(filepath.Join(t.TempDir(), "missing"), time.Hour)
	if err := sweeper.Sweep(); err != nil {
		t.Fatalf("Sweep on missing dir should be a no-op, got %v", err)
	}
}
