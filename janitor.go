package mentor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultJanitorSchedule runs maintenance every five minutes.
const defaultJanitorSchedule = "*/5 * * * *"

// Checkpointer is implemented by stores that benefit from periodic
// maintenance, such as WAL checkpoints.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Janitor runs periodic maintenance for an engine: evicting idle session
// state, persisting a budget snapshot, and checkpointing the store when it
// supports that.
type Janitor struct {
	engine *Engine
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewJanitor creates a janitor for the engine.
func NewJanitor(engine *Engine) *Janitor {
	return &Janitor{
		engine: engine,
		cron:   cron.New(),
		logger: engine.logger.With("component", "janitor"),
	}
}

// Start begins scheduled maintenance using the engine's configured cron
// expression, defaulting to every five minutes. The janitor stops itself
// when ctx is canceled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("mentor: janitor already running")
	}

	cfg, _, _ := j.engine.snapshot()
	schedule := cfg.Maintenance.Schedule
	if schedule == "" {
		schedule = defaultJanitorSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("mentor: invalid maintenance schedule %q: %w", schedule, err)
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.run(ctx) }); err != nil {
		return fmt.Errorf("mentor: schedule maintenance: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("maintenance started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// run executes one maintenance cycle.
func (j *Janitor) run(ctx context.Context) {
	now := j.engine.clock()

	evicted := j.engine.EvictIdleSessions(now)

	if err := j.engine.SnapshotBudget(ctx); err != nil {
		j.logger.Error("budget snapshot failed", "error", err)
	}

	if cp, ok := j.engine.store.(Checkpointer); ok {
		if err := cp.Checkpoint(ctx); err != nil {
			j.logger.Error("store checkpoint failed", "error", err)
		}
	}

	j.logger.Debug("maintenance cycle completed", "evicted_sessions", evicted)
}

// Stop stops the janitor and waits for a running cycle to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.running = false
	j.logger.Info("maintenance stopped")
}

// NextRun returns the next scheduled maintenance time, or zero when stopped.
func (j *Janitor) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
