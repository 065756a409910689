package eventstream

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type (
	// Spawner runs fn detached from the caller. Nothing about fn's outcome is reported back.
	Spawner interface {
		Spawn(fn func(ctx context.Context) error)
	}

	SpawnerFunc func(fn func(ctx context.Context) error)
)

func (f SpawnerFunc) Spawn(fn func(ctx context.Context) error) {
	f(fn)
}

// GroupScheduler spawns every task on its own goroutine inside an errgroup. Task errors and panics
// are logged and swallowed so one handler can never affect another.
type GroupScheduler struct {
	logger logger
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewGroupScheduler(logger logger) *GroupScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &GroupScheduler{
		logger: logger.WithField("type", "group_scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *GroupScheduler) Spawn(fn func(ctx context.Context) error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warnln("scheduler is shut down, dropping task")
		return
	}

	s.group.Go(func() error {
		if err := s.run(fn); err != nil {
			s.logger.Warnf("spawned task failed: %s", err)
		}
		return nil
	})
}

func (s *GroupScheduler) run(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("spawned task panicked: %v", r)
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Shutdown stops accepting tasks, cancels the context handed to running ones and waits for them
// to return or for ctx to be done.
func (s *GroupScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for spawned tasks")
	}
}
