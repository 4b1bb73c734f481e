// Package schedule runs named background jobs (corpus refresh, analytics
// snapshots) on cron specs.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type entry struct {
	id   cron.EntryID
	spec string
	run  func()
}

// Scheduler wraps a cron runner. Runs of the same job never overlap, and a
// panicking job is recovered and logged.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]entry
	started bool
}

func New() *Scheduler {
	logger := slog.Default().With("component", "scheduler")
	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// Add registers job under name. spec uses the standard five-field syntax or
// descriptors such as "@every 10m"; an empty spec leaves the job disabled.
// Each run gets its own context bounded by timeout when timeout > 0.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	if spec == "" {
		s.logger.Info("job disabled", "job", name)
		return nil
	}
	run := func() {
		ctx := s.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		s.logger.Info("job finished", "job", name, "duration", time.Since(start))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.id)
	}
	id, err := s.cron.AddFunc(spec, run)
	if err != nil {
		return fmt.Errorf("scheduling %s with %q: %w", name, spec, err)
	}
	s.entries[name] = entry{id: id, spec: spec, run: run}
	s.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Trigger runs name immediately on the calling goroutine.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no scheduled job %q", name)
	}
	e.run()
	return nil
}

// Jobs lists registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next reports when name runs next; zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop cancels running jobs' contexts and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err())
	}
}
