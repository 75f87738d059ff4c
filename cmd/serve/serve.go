package serve

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/config"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/fswatch"
	"github.com/sidkik/sandboxsync/pkg/namespace"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
	"github.com/sidkik/sandboxsync/pkg/sync"
	"github.com/sidkik/sandboxsync/pkg/sync/server"
)

// Mocked for unit testing.
var hostFs = afero.NewOsFs()

// New creates a new `serve` command.
func New() *cobra.Command {
	var configPath, projectPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server for a sandbox.",
		Long: "Serve a sandbox to the contexts that attach to it.\n\n" +
			"The sandbox is published once enough contexts have asked for\n" +
			"it. Afterwards, every change is broadcast to all contexts, and\n" +
			"the typings of the sandbox's dependencies are kept up to date.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, configPath, projectPath); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "",
		"The path to the config file. Defaults to "+config.DefaultPath+".")
	cmd.Flags().StringVar(&projectPath, "project", "",
		"A JSON file containing the sandbox to serve.")
	return cmd
}

func run(ctx context.Context, configPath, projectPath string) error {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	fs, err := namespace.Mount(cfg.Storage)
	if err != nil {
		return errors.WithContext(err, "mount namespace")
	}
	if err := namespace.Ensure(fs, cfg.SandboxRoot); err != nil {
		return err
	}

	tree := sync.NewTree(fs, cfg.SandboxRoot, clockwork.NewRealClock())
	if err := loadTree(tree, fs, cfg, projectPath); err != nil {
		return errors.WithContext(err, "load sandbox")
	}

	hub := broadcast.NewHub(0)
	endpoint := hub.Attach()
	cache, err := cfg.NewTypingsCache(fs, cfg.SandboxRoot, endpoint)
	if err != nil {
		return errors.WithContext(err, "create typings cache")
	}

	coordinator := sync.NewCoordinator(ctx, endpoint, tree, cache, cfg.Quorum, cfg.ManifestName)
	defer coordinator.Close()
	go func() {
		defer util.HandlePanic()
		coordinator.Run(ctx)
	}()

	if namespace.IsPersistent(cfg.Storage) {
		root := filepath.Join(cfg.Storage.Root, filepath.FromSlash(cfg.SandboxRoot))
		if err := watchStorage(ctx, coordinator, root); err != nil {
			return errors.WithContext(err, "watch storage")
		}
	}

	log.WithField("entries", tree.Len()).
		WithField("quorum", cfg.Quorum).
		Info("Waiting for contexts to attach")
	bridge := server.New(hub, coordinator.Barrier())
	bridge.SetReadLimit(cfg.MaxMessageSize)
	return bridge.Run(ctx, cfg.ListenAddress)
}

// loadTree fills the tree from the project file if there is one. Otherwise,
// files already in persistent storage are used.
func loadTree(tree *sync.Tree, fs afero.Fs, cfg config.Config, projectPath string) error {
	if projectPath != "" {
		sb, err := readProject(projectPath)
		if err != nil {
			return err
		}
		tree.Load(sb)
		return nil
	}

	if namespace.IsPersistent(cfg.Storage) {
		snapshot, err := sync.SnapshotDisk(fs, cfg.SandboxRoot)
		if err != nil {
			return errors.WithContext(err, "read storage")
		}
		tree.Restore(snapshot)
	}
	return nil
}

func readProject(path string) (sandbox.Sandbox, error) {
	projectBytes, err := afero.ReadFile(hostFs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return sandbox.Sandbox{}, errors.FileNotFound{Path: path}
		}
		return sandbox.Sandbox{}, errors.WithContext(err, "read project")
	}

	var sb sandbox.Sandbox
	if err := json.Unmarshal(projectBytes, &sb); err != nil {
		return sandbox.Sandbox{}, errors.NewFriendlyError(
			"The project file %q could not be parsed: %s", path, err)
	}
	return sb, nil
}

// watchStorage syncs changes made directly to the storage directory.
func watchStorage(ctx context.Context, coordinator *sync.Coordinator, root string) error {
	events, err := fswatch.Watch(ctx, root)
	if err != nil {
		return err
	}

	go func() {
		defer util.HandlePanic()
		for range events {
			if err := coordinator.Reconcile(); err != nil {
				log.WithError(err).Warn("Failed to sync changes from storage")
			}
		}
	}()
	return nil
}
