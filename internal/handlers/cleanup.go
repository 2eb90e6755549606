package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"DF-TPLGEN/internal/importer"
)

// CleanupService periodically removes stale scratch files left in the work
// directory and forgets finished import jobs.
type CleanupService struct {
	workDir  string
	maxAge   time.Duration
	interval time.Duration
	jobs     *importer.Jobs
	logger   *slog.Logger
	now      func() time.Time

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func NewCleanupService(workDir string, maxAge time.Duration, jobs *importer.Jobs, logger *slog.Logger) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		workDir:  workDir,
		maxAge:   maxAge,
		interval: time.Hour,
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (s *CleanupService) Start() {
	s.ticker = time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-s.ticker.C:
				s.Run()
			}
		}
	}()
	s.logger.Info("cleanup service started", "work_dir", s.workDir, "max_age", s.maxAge)
}

func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
		s.logger.Info("cleanup service stopped")
	})
}

// Run does one cleanup pass and reports how many files and jobs went.
func (s *CleanupService) Run() (files, jobs int) {
	files = s.cleanupDirectory()
	if s.jobs != nil {
		jobs = s.jobs.Prune(s.maxAge)
	}
	if files > 0 || jobs > 0 {
		s.logger.Info("cleanup finished", "files", files, "jobs", jobs)
	}
	return files, jobs
}

func (s *CleanupService) cleanupDirectory() int {
	if s.workDir == "" {
		return 0
	}
	cutoff := s.now().Add(-s.maxAge)
	removed := 0

	err := filepath.WalkDir(s.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("failed to remove stale file", "path", path, "error", err)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("cleanup of work directory failed", "dir", s.workDir, "error", err)
	}
	return removed
}
