package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backup writes a consistent snapshot of the database to dest.
// VACUUM INTO produces a valid copy even while the WAL is active.
func (s *Store) Backup(dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := s.db.Exec("VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup database: %w", err)
	}
	return nil
}

// CleanupBackups removes backup files in dir older than retention.
// Returns the number of files deleted.
func (s *Store) CleanupBackups(dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// RunBackupLoop performs periodic backups until ctx is cancelled.
func (s *Store) RunBackupLoop(ctx context.Context, dir string, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dest := filepath.Join(dir, fmt.Sprintf("bigzbot_%s.db", time.Now().Format("20060102_150405")))
			s.logger.Info().Str("path", dest).Msg("starting database backup")
			if err := s.Backup(dest); err != nil {
				s.logger.Error().Err(err).Msg("backup failed")
				continue
			}
			deleted, err := s.CleanupBackups(dir, retention)
			if err != nil {
				s.logger.Error().Err(err).Msg("backup cleanup failed")
			} else if deleted > 0 {
				s.logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
			}
		}
	}
}
