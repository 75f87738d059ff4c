package sync

import (
	"context"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

func TestSupervisorLogsFailures(t *testing.T) {
	hook := logrusTest.NewGlobal()
	supervisor := NewSupervisor(context.Background())

	supervisor.Go("fails", func(context.Context) error {
		return errors.New("fetch failed")
	})
	supervisor.Wait()

	if assert.NotNil(t, hook.LastEntry()) {
		assert.Equal(t, "fails", hook.LastEntry().Data["task"])
		assert.Equal(t, errors.New("fetch failed"), hook.LastEntry().Data["error"])
	}
}

func TestSupervisorRecoversPanics(t *testing.T) {
	hook := logrusTest.NewGlobal()
	supervisor := NewSupervisor(context.Background())

	supervisor.Go("panics", func(context.Context) error {
		panic("boom")
	})
	supervisor.Wait()

	if assert.NotNil(t, hook.LastEntry()) {
		assert.Equal(t, "panics", hook.LastEntry().Data["task"])
		assert.Equal(t, errors.New("panic: boom"), hook.LastEntry().Data["error"])
	}
}

func TestSupervisorStop(t *testing.T) {
	supervisor := NewSupervisor(context.Background())

	supervisor.Go("blocks", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	supervisor.Stop()
}
