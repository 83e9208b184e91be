// Package schedule runs periodic jobs on cron specs.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on five-field cron specs. A job still running when
// its next tick arrives skips that tick.
type CronScheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	runs    map[string]func()
}

func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		logger:  logger.With(zap.String("component", "scheduler")),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		runs:    make(map[string]func()),
	}
}

// AddJob schedules job under spec. Job names must be unique.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := c.logger.With(zap.String("job", name), zap.String("spec", spec))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.entries[name]; dup {
		return fmt.Errorf("job %q already scheduled", name)
	}

	run := c.wrap(job, logger)
	entryID, err := c.cron.AddFunc(spec, run)
	if err != nil {
		logger.Error("Failed to schedule job", zap.Error(err))
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	c.entries[name] = entryID
	c.runs[name] = run
	logger.Info("Job scheduled")
	return nil
}

// Start begins firing jobs. Jobs receive ctx.
func (c *CronScheduler) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

// Trigger runs a scheduled job immediately, honouring the overlap guard.
func (c *CronScheduler) Trigger(name string) bool {
	c.mu.Lock()
	run, ok := c.runs[name]
	c.mu.Unlock()
	if ok {
		run()
	}
	return ok
}

// Next returns the next activation time of a job.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	id, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(id).Next, true
}

func (c *CronScheduler) wrap(job Job, logger *zap.Logger) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logger.Info("Job skipped: still running")
			return
		}
		defer running.Store(false)

		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()

		start := time.Now()
		logger.Info("Job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("Job failed", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("Job finished", zap.Duration("duration", elapsed))
	}
}
