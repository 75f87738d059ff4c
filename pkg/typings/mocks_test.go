package typings

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sidkik/sandboxsync/pkg/broadcast"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, deps DependencySet) (DependencySet, error) {
	args := m.Called(ctx, deps)
	resolved, _ := args.Get(0).(DependencySet)
	return resolved, args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, name, version string) (map[string]string, error) {
	args := m.Called(ctx, name, version)
	files, _ := args.Get(0).(map[string]string)
	return files, args.Error(1)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Load(ctx context.Context) (Index, error) {
	args := m.Called(ctx)
	index, _ := args.Get(0).(Index)
	return index, args.Error(1)
}

// spyPublisher records every published message.
type spyPublisher struct {
	lock sync.Mutex
	msgs []broadcast.Message
}

func (p *spyPublisher) Publish(msg broadcast.Message) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *spyPublisher) Messages() []broadcast.Message {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]broadcast.Message{}, p.msgs...)
}
