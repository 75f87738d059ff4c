package sync

import (
	"context"
	"path"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/metrics"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
	"github.com/sidkik/sandboxsync/pkg/typings"
)

// DefaultQuorum is the number of contexts that have to ask for the tree
// before it's first published.
const DefaultQuorum = 3

// TypingsRefresher rebuilds the dependency typings.
type TypingsRefresher interface {
	Refresh(context.Context) typings.Result
}

// Coordinator applies local mutations to the tree and broadcasts them, and
// answers the requests of the other contexts.
//
// Nothing is published in response to requests until `quorum` contexts
// have asked for the tree. At that point, the tree and then the typings are
// published once. Afterwards, every request is answered right away.
type Coordinator struct {
	barrier      *Barrier
	endpoint     *broadcast.Endpoint
	tree         *Tree
	typings      TypingsRefresher
	supervisor   *Supervisor
	manifestName string
}

// NewCoordinator creates a Coordinator. Background work is stopped when
// `ctx` is done.
func NewCoordinator(ctx context.Context, endpoint *broadcast.Endpoint, tree *Tree,
	refresher TypingsRefresher, quorum int, manifestName string) *Coordinator {

	return &Coordinator{
		barrier:      NewBarrier(quorum),
		endpoint:     endpoint,
		tree:         tree,
		typings:      refresher,
		supervisor:   NewSupervisor(ctx),
		manifestName: manifestName,
	}
}

// Run handles messages from the other contexts, and does the initial
// publish once enough contexts are ready. It blocks until `ctx` is done.
func (c *Coordinator) Run(ctx context.Context) {
	c.endpoint.OnMessage(c.handle)

	select {
	case <-c.barrier.Done():
	case <-ctx.Done():
		return
	}

	log.WithField("contexts", c.barrier.Count()).Info("All contexts are ready. Publishing the sandbox.")
	c.SyncSandbox()
	c.SyncTypings()

	<-ctx.Done()
}

func (c *Coordinator) handle(msg broadcast.Message) {
	switch msg.(type) {
	case broadcast.SyncSandbox:
		if !c.barrier.Resolved() {
			metrics.RecordReadinessSignal()
			c.barrier.Signal()
			log.WithField("ready", c.barrier.Count()).Debug("Context is ready")
			return
		}
		c.SyncSandbox()
	case broadcast.SyncTypes:
		if !c.barrier.Resolved() {
			log.Debug("Ignoring typings request until all contexts are ready")
			return
		}
		c.SyncTypings()
	default:
		log.WithField("kind", msg.Kind()).Debug("Ignoring message")
	}
}

// Ready returns a channel that's closed once enough contexts are ready.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.barrier.Done()
}

// Barrier returns the readiness barrier.
func (c *Coordinator) Barrier() *Barrier {
	return c.barrier
}

// Tree returns the coordinator's view of the files.
func (c *Coordinator) Tree() *Tree {
	return c.tree
}

// SyncSandbox publishes the entire tree.
func (c *Coordinator) SyncSandbox() {
	snapshot := c.tree.Snapshot()
	log.WithField("entries", len(snapshot)).Debug("Publishing sandbox")
	c.endpoint.Publish(broadcast.SandboxFS{Snapshot: snapshot})
}

// SyncTypings refreshes the typings in the background. The refresher
// publishes and logs the result itself.
func (c *Coordinator) SyncTypings() {
	c.supervisor.Go("sync typings", func(ctx context.Context) error {
		c.typings.Refresh(ctx)
		return nil
	})
}

// WriteFile creates or replaces a file, and announces it. Writing the
// dependency manifest also refreshes the typings.
func (c *Coordinator) WriteFile(entry sandbox.Entry) error {
	stored, err := c.tree.WriteFile(entry)
	if err != nil {
		return err
	}

	c.endpoint.Publish(broadcast.WriteFile{Entry: stored})
	if path.Base(stored.Path) == c.manifestName {
		c.SyncTypings()
	}
	return nil
}

// Rename moves an entry and announces it.
func (c *Coordinator) Rename(from, to string) error {
	if err := c.tree.Rename(from, to); err != nil {
		return err
	}

	c.endpoint.Publish(broadcast.Rename{
		FromPath: sandbox.Clean(from),
		ToPath:   sandbox.Clean(to),
	})
	return nil
}

// Unlink removes a file and announces it.
func (c *Coordinator) Unlink(p string) error {
	removed, err := c.tree.Unlink(p)
	if err != nil {
		return err
	}

	c.endpoint.Publish(broadcast.Unlink{File: removed})
	return nil
}

// Rmdir removes a directory and everything in it, and announces it.
func (c *Coordinator) Rmdir(p string) error {
	removed, err := c.tree.Rmdir(p)
	if err != nil {
		return err
	}

	c.endpoint.Publish(broadcast.Rmdir{Directory: removed})
	return nil
}

// Mkdir creates a directory and announces it.
func (c *Coordinator) Mkdir(entry sandbox.Entry) error {
	created, err := c.tree.Mkdir(entry)
	if err != nil {
		return err
	}

	c.endpoint.Publish(broadcast.Mkdir{Directory: created})
	return nil
}

// Wait blocks until all background work has finished.
func (c *Coordinator) Wait() {
	c.supervisor.Wait()
}

// Close stops all background work.
func (c *Coordinator) Close() {
	c.supervisor.Stop()
	c.endpoint.Close()
}
