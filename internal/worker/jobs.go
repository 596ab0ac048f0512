package worker

import (
	"context"
	"time"

	"pawcare/internal/config"

	"github.com/rs/zerolog"
)

const day = 24 * time.Hour

// SessionRefresher refetches every open booking screen.
type SessionRefresher interface {
	RefreshAll(ctx context.Context) int
}

type JournalMaintainer interface {
	Backup(ctx context.Context, dir string) (string, error)
	CleanupBackups(dir string, retention time.Duration) (int, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefreshJob is the background fetch-on-refresh source. Its fetches may
// overlap with user refreshes; the view keeps only the last issued one.
func RefreshJob(sessions SessionRefresher, logger *zerolog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		start := time.Now()
		n := sessions.RefreshAll(ctx)
		if n > 0 {
			logger.Debug().Int("sessions", n).Dur("duration", time.Since(start)).Msg("Open sessions refreshed")
		}
	}
}

// BackupJob copies the journal and drops backups past their retention.
func BackupJob(j JournalMaintainer, cfg config.BackupConfig, retry RetryPolicy, logger *zerolog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		var path string
		err := retry.Do(ctx, func(ctx context.Context) error {
			var err error
			path, err = j.Backup(ctx, cfg.StoragePath)
			return err
		})
		if err != nil {
			logger.Error().Err(err).Msg("Journal backup failed")
			return
		}
		logger.Info().Str("path", path).Msg("Journal backup created")

		removed, err := j.CleanupBackups(cfg.StoragePath, time.Duration(cfg.RetentionDays)*day)
		if err != nil {
			logger.Error().Err(err).Msg("Backup cleanup failed")
			return
		}
		if removed > 0 {
			logger.Info().Int("removed", removed).Msg("Old journal backups removed")
		}
	}
}

// PruneJob deletes journal entries older than retentionDays.
func PruneJob(j JournalMaintainer, retentionDays int, logger *zerolog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * day)
		n, err := j.Prune(ctx, cutoff)
		if err != nil {
			logger.Error().Err(err).Msg("Journal prune failed")
			return
		}
		if n > 0 {
			logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Journal pruned")
		}
	}
}
