// Package bot runs the chat-platform front ends.
package bot

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start while a task is active.
var ErrAlreadyRunning = errors.New("bot already running")

// Runnable is a long-lived bot loop. Run returns when ctx is cancelled.
type Runnable interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervisor owns at most one running bot. All transitions go through it.
type Supervisor struct {
	base   context.Context
	logger *zap.Logger

	mu     sync.Mutex
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a supervisor whose tasks live no longer than ctx.
func NewSupervisor(ctx context.Context, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{base: ctx, logger: logger.With(zap.String("component", "bot"))}
}

// Start launches r. It fails if a task is already running.
func (s *Supervisor) Start(r Runnable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return ErrAlreadyRunning
	}
	s.startLocked(r)
	return nil
}

// Stop cancels the running task and waits for it to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Restart stops the current task, if any, then starts r.
func (s *Supervisor) Restart(r Runnable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.startLocked(r)
}

// Running reports whether a task is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Supervisor) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Supervisor) startLocked(r Runnable) {
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.name, s.cancel, s.done = r.Name(), cancel, done

	logger := s.logger.With(zap.String("bot", r.Name()))
	logger.Info("Bot started")
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Bot exited", zap.Error(err))
			return
		}
		logger.Info("Bot stopped")
	}()
}

func (s *Supervisor) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done, s.name = nil, nil, ""
}
