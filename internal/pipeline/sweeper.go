package pipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultScratchTTL           = 30 * time.Minute
	DefaultScratchSweepInterval = 10 * time.Minute
)

// Sweeper removes scratch directories and stray uploads left behind by
// crashed requests. Normal requests clean up after themselves; this recovers
// the leaks.
type Sweeper struct {
	baseDir string
	ttl     time.Duration
}

// NewSweeper watches baseDir for entries older than ttl.
func NewSweeper(baseDir string, ttl time.Duration) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultScratchTTL
	}
	return &Sweeper{baseDir: baseDir, ttl: ttl}
}

// Start launches the background sweep loop; it stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScratchSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Sweeper) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				log.Printf("scratch sweep error: %v", err)
			}
		}
	}
}

// Sweep removes every entry under the base dir whose modification time is
// older than the TTL.
func (s *Sweeper) Sweep() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-s.ttl)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("sweep remove %s failed: %v", path, err)
		}
	}
	return nil
}
