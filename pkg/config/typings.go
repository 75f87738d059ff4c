package config

import (
	"net/http"
	"path"

	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/typings"
)

// NewTypingsCache creates a typings cache for the manifest in `dir` that
// uses the configured services.
func (config Config) NewTypingsCache(fs afero.Fs, dir string,
	publisher typings.Publisher) (*typings.Cache, error) {

	// Fetches can only be cancelled by the caller's context.
	client := &http.Client{}

	resolver, err := typings.NewRegistryResolver(config.Typings.NPMRegistryURL, client,
		config.Typings.Concurrency)
	if err != nil {
		return nil, errors.WithContext(err, "create resolver")
	}

	return typings.NewCache(typings.Config{
		Fs:              fs,
		ManifestPath:    path.Join(dir, config.ManifestName),
		BuildConfigName: config.BuildConfigName,
		Index:           typings.NewIndexLoader(config.Typings.RegistryIndexURL, client),
		Resolver:        resolver,
		Fetcher:         typings.NewBundleFetcher(config.Typings.ServiceURL, client, config.Typings.CacheDir),
		Publisher:       publisher,
		Concurrency:     config.Typings.Concurrency,
	}), nil
}
