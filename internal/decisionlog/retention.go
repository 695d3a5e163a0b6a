package decisionlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultPruneSchedule runs retention daily at 03:00.
const DefaultPruneSchedule = "0 3 * * *"

// Pruner deletes entries older than the retention window. A non-positive
// retention keeps everything.
type Pruner struct {
	sink          Sink
	retentionDays int
	now           func() time.Time
	logger        *zap.Logger
}

func NewPruner(sink Sink, retentionDays int, logger *zap.Logger) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{sink: sink, retentionDays: retentionDays, now: time.Now, logger: logger}
}

// Cutoff is the oldest logged_at that survives a prune.
func (p *Pruner) Cutoff() time.Time {
	return p.now().UTC().AddDate(0, 0, -p.retentionDays)
}

func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := p.Cutoff()
	deleted, err := p.sink.Prune(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("prune decision log: %w", err)
	}
	p.logger.Info("decision log pruned",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// Scheduler runs a Pruner on a cron schedule.
type Scheduler struct {
	pruner   *Pruner
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(pruner *Pruner, schedule string) *Scheduler {
	return &Scheduler{
		pruner:   pruner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   pruner.logger,
	}
}

// Start registers the prune job and starts the cron loop. An empty schedule
// or disabled retention leaves the scheduler idle. The scheduler stops when
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.pruner.retentionDays <= 0 {
		s.logger.Info("decision log retention disabled")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("decision log retention started",
		zap.String("schedule", s.schedule),
		zap.Int("retention_days", s.pruner.retentionDays),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if _, err := s.pruner.Prune(ctx); err != nil {
		s.logger.Error("scheduled prune failed", zap.Error(err))
	}
}

// Stop waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("decision log retention stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, or the zero time when idle.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
