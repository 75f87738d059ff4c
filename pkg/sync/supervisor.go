package sync

import (
	"context"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// Supervisor runs detached tasks whose results nobody waits for. Failures,
// including panics, are logged with the task's name and never reach the
// code that started the task.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor returns a Supervisor whose tasks are cancelled when `ctx`
// is done, or when the supervisor is stopped.
func NewSupervisor(ctx context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(ctx)
	return &Supervisor{ctx: ctx, cancel: cancel}
}

// Go starts `task` in the background.
func (s *Supervisor) Go(name string, task func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger := log.WithField("task", name)
		if err := s.run(task); err != nil {
			logger.WithError(err).Warn("Background task failed")
			return
		}
		logger.Debug("Background task finished")
	}()
}

func (s *Supervisor) run(task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Debug("Recovered background task panic")
			err = errors.New("panic: %v", r)
		}
	}()
	return task(s.ctx)
}

// Wait blocks until all started tasks have finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Stop cancels the running tasks and waits for them to exit.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}
