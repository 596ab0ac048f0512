package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const backupPrefix = "journal_"

// Backup writes a consistent copy of the journal into dir using VACUUM INTO
// and returns its path.
func (j *Journal) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, time.Now().Format("20060102_150405.000"))
	target := filepath.Join(dir, name)
	if strings.ContainsRune(target, '\'') {
		return "", fmt.Errorf("backup path %q contains a quote", target)
	}

	j.logger.Info().Str("path", target).Msg("Backing up action journal")
	if _, err := j.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", target)); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	}
	return target, nil
}

// CleanupBackups removes journal backups in dir older than retention.
func (j *Journal) CleanupBackups(dir string, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			j.logger.Info().Str("file", file.Name()).Msg("Deleting old journal backup")
			if err := os.Remove(filepath.Join(dir, file.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
