package typings

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/config"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/typings"
)

// Mocked for unit testing.
var fs = afero.NewOsFs()

// New creates a new `typings` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "typings <dir>",
		Short: "Fetch the typings of a project's dependencies.",
		Long: "Fetch the type declarations of the dependencies in a project's\n" +
			"package.json, and print the path of every declaration file.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Parse(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "parse config"))
			}

			paths, err := run(ctx, cfg, args[0])
			if err != nil {
				util.HandleFatalError(err)
			}
			for _, p := range paths {
				fmt.Println(p)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "",
		"The path to the config file. Defaults to "+config.DefaultPath+".")
	return cmd
}

// run refreshes the typings of the project in `dir` once, and returns the
// sorted paths of the published files.
func run(ctx context.Context, cfg config.Config, dir string) ([]string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WithContext(err, "resolve project directory")
	}

	var published map[string]string
	publisher := typings.PublisherFunc(func(msg broadcast.Message) {
		if msg, ok := msg.(broadcast.TypingsSync); ok {
			published = msg.Files
		}
	})

	cache, err := cfg.NewTypingsCache(fs, filepath.ToSlash(dir), publisher)
	if err != nil {
		return nil, err
	}

	result := cache.Refresh(ctx)
	switch result.Status {
	case typings.StatusSynced:
	case typings.StatusNotReady:
		return nil, errors.NewFriendlyError("Failed to read %s in %q: %s",
			cfg.ManifestName, dir, result.Err)
	default:
		return nil, errors.WithContext(result.Err, string(result.Status))
	}

	var paths []string
	for p := range published {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
