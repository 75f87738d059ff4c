// Package namespace provides the filesystem that sandbox files are projected
// into.
package namespace

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/pkg/config"
	"github.com/sidkik/sandboxsync/pkg/errors"
)

var osFs = afero.NewOsFs()

// Mount returns the filesystem described by `storage`. Paths in an OS
// namespace are relative to the storage root, so the namespace looks the
// same regardless of the storage backing it.
func Mount(storage config.Storage) (afero.Fs, error) {
	switch storage.Type {
	case config.StorageMemory, "":
		log.Debug("Mounting in-memory namespace")
		return afero.NewMemMapFs(), nil
	case config.StorageOS:
		if storage.Root == "" {
			return nil, errors.MissingFieldError{Field: "storage.root"}
		}
		if err := osFs.MkdirAll(storage.Root, 0755); err != nil {
			return nil, errors.WithContext(err, "create storage root")
		}

		fi, err := osFs.Stat(storage.Root)
		if err != nil {
			return nil, errors.WithContext(err, "stat storage root")
		}
		if !fi.IsDir() {
			return nil, errors.NotDirectory{Path: storage.Root}
		}

		log.WithField("root", storage.Root).Debug("Mounting OS namespace")
		return afero.NewBasePathFs(osFs, storage.Root), nil
	default:
		return nil, errors.NewFriendlyError("Unknown storage type %q. "+
			"Supported types are %q and %q.", storage.Type, config.StorageMemory, config.StorageOS)
	}
}

// IsPersistent returns whether files already in the namespace survive
// restarts, and so should be read when the server starts.
func IsPersistent(storage config.Storage) bool {
	return storage.Type == config.StorageOS
}

// Ensure creates `root` within the namespace.
func Ensure(fs afero.Fs, root string) error {
	if err := fs.MkdirAll(root, os.ModePerm); err != nil {
		return errors.WithContext(err, "create sandbox root")
	}
	return nil
}
