// Package typings keeps the type declarations of a project's dependencies
// in sync with its package.json. When the manifest changes, the dependency
// set is resolved to exact versions, the declaration bundle of every
// dependency is fetched, and the merged result is published to the other
// contexts.
//
// Typings are best-effort: every failure is logged and converted into a
// Result, and never returned to the code that triggered the refresh.
package typings

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/metrics"
)

// Status describes the outcome of a refresh.
type Status string

const (
	// StatusSynced means that the typings were rebuilt and published.
	StatusSynced Status = "synced"

	// StatusUnchanged means that the manifest hasn't been modified since the
	// last refresh, so nothing was fetched or published.
	StatusUnchanged Status = "unchanged"

	// StatusNotReady means that the manifest couldn't be read. This is
	// expected while the namespace is still being mounted.
	StatusNotReady Status = "not-ready"

	// StatusEmpty means that the refresh failed, and nothing was published.
	StatusEmpty Status = "empty"

	// StatusCoalesced means that another refresh was already running. It
	// runs once more after it finishes, so the change isn't lost.
	StatusCoalesced Status = "coalesced"
)

// Result is the outcome of a refresh.
type Result struct {
	Status Status

	// Files contains the merged typings after the refresh.
	Files map[string]string

	// Err is the reason for StatusNotReady and StatusEmpty.
	Err error
}

// Publisher sends messages to the other contexts.
type Publisher interface {
	Publish(broadcast.Message)
}

// PublisherFunc adapts a function into a Publisher.
type PublisherFunc func(broadcast.Message)

func (f PublisherFunc) Publish(msg broadcast.Message) {
	f(msg)
}

// ManifestState is what the cache remembers between refreshes. It's only
// ever replaced as a whole.
type ManifestState struct {
	ModTime time.Time
	Files   map[string]string
}

// Config contains the collaborators of a Cache.
type Config struct {
	// Fs is the namespace containing the manifest.
	Fs afero.Fs

	// ManifestPath is the path of the package.json within Fs. The build
	// config is looked for in the same directory.
	ManifestPath    string
	BuildConfigName string

	Index     IndexSource
	Resolver  Resolver
	Fetcher   Fetcher
	Publisher Publisher

	// Concurrency limits the number of bundles fetched at once. A
	// non-positive value means no limit.
	Concurrency int

	Clock clockwork.Clock
}

// Cache tracks the typings of a single project. There should be one per
// process.
type Cache struct {
	Config

	lock       sync.Mutex
	refreshing bool
	pending    bool
	state      ManifestState
}

// NewCache returns a cache that hasn't seen the manifest yet.
func NewCache(cfg Config) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Cache{Config: cfg}
}

// Files returns the typings computed by the last successful refresh.
func (c *Cache) Files() map[string]string {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.state.Files == nil {
		return map[string]string{}
	}
	return copyFiles(c.state.Files)
}

func copyFiles(files map[string]string) map[string]string {
	if files == nil {
		return nil
	}

	copied := make(map[string]string, len(files))
	for k, v := range files {
		copied[k] = v
	}
	return copied
}

// State returns the current manifest state.
func (c *Cache) State() ManifestState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Refresh rebuilds and publishes the typings if the manifest changed since
// the last refresh. Only one refresh runs at a time: a call that overlaps
// with a running refresh returns StatusCoalesced, and the running refresh
// checks the manifest again before it returns.
func (c *Cache) Refresh(ctx context.Context) Result {
	c.lock.Lock()
	if c.refreshing {
		c.pending = true
		c.lock.Unlock()

		result := Result{Status: StatusCoalesced}
		c.logResult(result, 0, false)
		return result
	}
	c.refreshing = true
	c.lock.Unlock()

	result := c.refreshOnce(ctx)
	for {
		c.lock.Lock()
		if !c.pending {
			c.refreshing = false
			c.lock.Unlock()
			return result
		}
		c.pending = false
		c.lock.Unlock()

		c.refreshOnce(ctx)
	}
}

func (c *Cache) refreshOnce(ctx context.Context) (result Result) {
	start := c.Clock.Now()
	ranPipeline := false
	defer func() {
		if r := recover(); r != nil {
			result = Result{Status: StatusEmpty, Err: errors.New("panic: %v", r)}
		}
		c.logResult(result, c.Clock.Since(start), ranPipeline)
	}()

	fi, err := c.Fs.Stat(c.ManifestPath)
	if err != nil {
		return Result{Status: StatusNotReady, Err: errors.WithContext(err, "stat manifest")}
	}

	modTime := fi.ModTime()
	prev := c.State()
	if modTime.Equal(prev.ModTime) {
		return Result{Status: StatusUnchanged, Files: copyFiles(prev.Files)}
	}

	ranPipeline = true
	c.replaceState(ManifestState{ModTime: modTime, Files: prev.Files})

	contents, err := afero.ReadFile(c.Fs, c.ManifestPath)
	if err != nil {
		return Result{Status: StatusNotReady, Err: errors.WithContext(err, "read manifest")}
	}

	// Projects without a build config still get typings for all of their
	// dependencies.
	buildConfigPath := path.Join(path.Dir(c.ManifestPath), c.BuildConfigName)
	hasBuildConfig, err := afero.Exists(c.Fs, buildConfigPath)
	autoInstall := err != nil || !hasBuildConfig

	manifest, err := ParseManifest(contents)
	if err != nil {
		return Result{Status: StatusEmpty, Err: err}
	}

	deps := BuildDependencies(manifest)
	if autoInstall {
		index, err := c.Index.Load(ctx)
		if err != nil {
			return Result{Status: StatusEmpty, Err: err}
		}
		AddTypesPackages(deps, index)
	}

	resolved, err := c.Resolver.Resolve(ctx, deps)
	if err != nil {
		return Result{Status: StatusEmpty, Err: errors.WithContext(err, "resolve dependencies")}
	}

	files := c.fetchAll(ctx, resolved)
	c.replaceState(ManifestState{ModTime: modTime, Files: files})
	c.Publisher.Publish(broadcast.TypingsSync{Files: files})
	return Result{Status: StatusSynced, Files: files}
}

// fetchAll fetches every bundle concurrently. A dependency whose bundle
// can't be fetched contributes no files, but doesn't affect the others.
// Bundles are merged in order of the dependency's name.
func (c *Cache) fetchAll(ctx context.Context, deps DependencySet) map[string]string {
	names := deps.Names()
	bundles := make([]map[string]string, len(names))

	var group errgroup.Group
	if c.Concurrency > 0 {
		group.SetLimit(c.Concurrency)
	}

	for i, name := range names {
		i, name := i, name
		version := deps[name]
		group.Go(func() error {
			files, err := c.fetch(ctx, name, version)
			if err != nil {
				metrics.RecordBundleFetchFailure()
				log.WithError(err).WithField("package", name+"@"+version).
					Debug("Failed to fetch typings. Skipping package.")
				return nil
			}
			bundles[i] = files
			return nil
		})
	}
	_ = group.Wait()

	merged := map[string]string{}
	for _, files := range bundles {
		for p, contents := range files {
			merged[p] = contents
		}
	}
	return merged
}

func (c *Cache) fetch(ctx context.Context, name, version string) (files map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic: %v", r)
		}
	}()
	return c.Fetcher.Fetch(ctx, name, version)
}

func (c *Cache) replaceState(state ManifestState) {
	c.lock.Lock()
	c.state = state
	c.lock.Unlock()
}

func (c *Cache) logResult(result Result, duration time.Duration, ranPipeline bool) {
	metrics.RecordTypingsRefresh(string(result.Status), duration, ranPipeline)

	logger := log.WithField("status", result.Status)
	switch result.Status {
	case StatusSynced:
		logger.WithField("files", len(result.Files)).
			WithField("duration", duration).
			Info("Synced dependency typings")
	case StatusEmpty:
		logger.WithError(result.Err).Warn("Failed to sync dependency typings")
	case StatusNotReady:
		logger.WithError(result.Err).Debug("Manifest isn't ready yet. Skipping typings sync.")
	default:
		logger.Debug("Skipped typings sync")
	}
}
