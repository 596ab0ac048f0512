package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"pawcare/internal/config"
	"pawcare/internal/journal"
	"pawcare/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))

	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))
}

func TestRetryPolicyDo(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	boom := errors.New("boom")

	t.Run("EventuallySucceeds", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("GivesUp", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 4, calls)
	})

	t.Run("StopsOnCancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}
		calls := 0
		err := slow.Do(ctx, func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}

func TestScheduler(t *testing.T) {
	logger := zerolog.Nop()
	s := NewScheduler(&logger)

	require.Error(t, s.Add("bad", "not a schedule", func(context.Context) {}))

	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 10ms", func(ctx context.Context) { runs.Add(1) }))
	require.Error(t, s.Add("tick", "@every 1s", func(context.Context) {}))
	assert.Equal(t, []string{"tick"}, s.Jobs())

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerCancelsJobsOnStop(t *testing.T) {
	logger := zerolog.Nop()
	s := NewScheduler(&logger)

	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	require.NoError(t, s.Add("long", "@every 10ms", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.True(t, cancelled.Load())
}

type countingRefresher struct{ calls atomic.Int32 }

func (r *countingRefresher) RefreshAll(ctx context.Context) int {
	r.calls.Add(1)
	return 3
}

func TestRefreshJob(t *testing.T) {
	logger := zerolog.Nop()
	r := &countingRefresher{}
	job := RefreshJob(r, &logger)
	job(context.Background())
	job(context.Background())
	assert.EqualValues(t, 2, r.calls.Load())
}

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	logger := zerolog.Nop()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestBackupJob(t *testing.T) {
	j := openJournal(t)
	require.NoError(t, j.Record(context.Background(), &models.JournalEntry{
		SessionID: "s1", Domain: models.DomainLab, BookingID: "l1",
		Action: models.ActionCancel, Outcome: models.OutcomeSucceeded,
	}))

	dir := t.TempDir()
	stale := filepath.Join(dir, "journal_20000101_000000.000.db")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().Add(-10 * day)
	require.NoError(t, os.Chtimes(stale, old, old))

	logger := zerolog.Nop()
	cfg := config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}
	BackupJob(j, cfg, RetryPolicy{}, &logger)(context.Background())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.NotEqual(t, filepath.Base(stale), files[0].Name())
}

type fakeMaintainer struct {
	backupErrs int
	backups    int
	cutoff     time.Time
}

func (f *fakeMaintainer) Backup(ctx context.Context, dir string) (string, error) {
	f.backups++
	if f.backups <= f.backupErrs {
		return "", errors.New("disk full")
	}
	return filepath.Join(dir, "journal_x.db"), nil
}

func (f *fakeMaintainer) CleanupBackups(dir string, retention time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeMaintainer) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, nil
}

func TestBackupJobRetries(t *testing.T) {
	logger := zerolog.Nop()
	f := &fakeMaintainer{backupErrs: 2}
	BackupJob(f, config.BackupConfig{StoragePath: t.TempDir()}, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}, &logger)(context.Background())
	assert.Equal(t, 3, f.backups)
}

func TestPruneJob(t *testing.T) {
	logger := zerolog.Nop()
	f := &fakeMaintainer{}
	before := time.Now().UTC()
	PruneJob(f, 30, &logger)(context.Background())
	assert.WithinDuration(t, before.Add(-30*day), f.cutoff, time.Minute)
}
