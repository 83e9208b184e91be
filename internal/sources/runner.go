package sources

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/settings"
)

// Store is the part of the settings store the runner needs.
type Store interface {
	Get() settings.Settings
	Update(fn func(*settings.Settings)) error
}

// Runner triggers synchronizers, allowing one pass per source at a time and
// advancing the watermark only after a complete sweep.
type Runner struct {
	store   Store
	syncs   map[string]Synchronizer
	order   []string
	running map[string]*atomic.Bool
	now     func() time.Time
	logger  *zap.Logger
}

func NewRunner(store Store, logger *zap.Logger, syncs ...Synchronizer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		store:   store,
		syncs:   make(map[string]Synchronizer, len(syncs)),
		running: make(map[string]*atomic.Bool, len(syncs)),
		now:     time.Now,
		logger:  logger.With(zap.String("component", "sources")),
	}
	for _, s := range syncs {
		r.syncs[s.Name()] = s
		r.running[s.Name()] = &atomic.Bool{}
		r.order = append(r.order, s.Name())
	}
	return r
}

// Names lists the registered sources in registration order.
func (r *Runner) Names() []string {
	return append([]string(nil), r.order...)
}

// Status returns the persisted state of a source.
func (r *Runner) Status(name string) (State, error) {
	s, ok := r.syncs[name]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return s.State(r.store.Get()), nil
}

// Test checks the connection of a source, enabled or not.
func (r *Runner) Test(ctx context.Context, name string) error {
	s, ok := r.syncs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return s.Test(ctx, r.store.Get())
}

// Run performs one sweep of the named source.
func (r *Runner) Run(ctx context.Context, name string) (Result, error) {
	s, ok := r.syncs[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	snapshot := r.store.Get()
	state := s.State(snapshot)
	if !state.Enabled || !state.Configured {
		return Result{}, fmt.Errorf("%s: %w", name, ErrNotConfigured)
	}

	flag := r.running[name]
	if !flag.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%s: %w", name, ErrSyncInProgress)
	}
	defer flag.Store(false)

	// Items changed while the sweep runs are picked up by the next one.
	started := r.now().UTC().Format(time.RFC3339)
	logger := r.logger.With(zap.String("source", name), zap.String("since", state.LastSync))
	logger.Info("Sync started")

	res, err := s.Sync(ctx, snapshot, state.LastSync)
	if err != nil {
		logger.Error("Sync aborted, watermark unchanged",
			zap.Int("synced", res.Synced), zap.Error(err))
		return res, fmt.Errorf("%w: %s: %w", ErrSyncAborted, name, err)
	}

	if err := r.store.Update(func(cfg *settings.Settings) {
		if modifiedAfter(started, s.State(*cfg).LastSync) {
			s.Advance(cfg, started)
		}
	}); err != nil {
		return res, fmt.Errorf("save watermark for %s: %w", name, err)
	}

	logger.Info("Sync complete",
		zap.Int("synced", res.Synced),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.String("watermark", started),
	)
	return res, nil
}

// RunAll sweeps every enabled source in order. Disabled sources are skipped.
func (r *Runner) RunAll(ctx context.Context) (map[string]Result, error) {
	results := make(map[string]Result, len(r.order))
	var firstErr error
	for _, name := range r.order {
		res, err := r.Run(ctx, name)
		if err != nil {
			if isNotConfigured(err) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		results[name] = res
	}
	return results, firstErr
}

// Jobs adapts each source to a scheduled job.
func (r *Runner) Jobs() []*Job {
	jobs := make([]*Job, len(r.order))
	for i, name := range r.order {
		jobs[i] = &Job{runner: r, name: name}
	}
	return jobs
}

// Job runs one source on a schedule. A disabled source is a no-op.
type Job struct {
	runner *Runner
	name   string
}

func (j *Job) Name() string { return "sync:" + j.name }

func (j *Job) Run(ctx context.Context) error {
	_, err := j.runner.Run(ctx, j.name)
	if isNotConfigured(err) {
		return nil
	}
	return err
}

func isNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
