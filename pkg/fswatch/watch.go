package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/sync"
)

var fs = afero.NewOsFs()

// Watch watches for changes to the files underneath `root`. It sends an
// event on the returned channel whenever something within `root` changes.
// Bursts of changes are combined into a single event. The channel is closed
// once `ctx` is done.
func Watch(ctx context.Context, root string) (<-chan struct{}, error) {
	pathsToWatch, err := getPathsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	events := make(chan fsnotify.Event)
	go func() {
		defer util.HandlePanic()
		defer close(events)
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					watchNewDir(watcher, event.Name)
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("File watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()
	return combineUpdates(events), nil
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// watchNewDir starts watching a directory created after the watch began,
// since fsnotify doesn't watch directories recursively.
func watchNewDir(watcher *fsnotify.Watcher, path string) {
	fi, err := fs.Stat(path)
	if err != nil || !fi.IsDir() || sync.Ignored(fi.Name()) {
		return
	}

	paths, err := getPathsToWatch(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to watch new directory")
		return
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to watch new directory")
		}
	}
}

// getPathsToWatch returns `root` and every directory beneath it that's
// part of the tree. Watching a directory covers the files directly inside
// it.
func getPathsToWatch(root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.NotDirectory{Path: root}
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}
		if !fi.IsDir() {
			return nil
		}
		if path != root && sync.Ignored(fi.Name()) {
			return filepath.SkipDir
		}

		paths = append(paths, path)
		return nil
	})
	return paths, err
}
