package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs named jobs on cron expressions. A job that is still running
// when its next tick comes is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]cron.EntryID
}

func NewScheduler(logger *zerolog.Logger) *Scheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add registers job under name. The job receives a context that is cancelled
// on Stop.
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug().Str("job", name).Msg("Running scheduled job")
		job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = id
	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("Job scheduled")
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out")
	}
}

type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
