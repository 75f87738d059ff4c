package typings

import (
	"context"
	"net/http"
	"sync"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// DefaultRegistryIndexURL lists every package that has type declarations
// published under @types.
const DefaultRegistryIndexURL = "https://unpkg.com/types-registry@latest/index.json"

// IndexEntry describes the published type declarations for a package.
type IndexEntry struct {
	Latest string `json:"latest"`
}

// Index maps a package name (without the @types scope) to its entry.
type Index map[string]IndexEntry

// IndexSource provides the registry index.
type IndexSource interface {
	Load(context.Context) (Index, error)
}

// IndexLoader fetches the registry index at most once. The first call's
// outcome, including a failure, is shared with every later call.
type IndexLoader struct {
	url    string
	client *http.Client

	once  sync.Once
	index Index
	err   error
}

// NewIndexLoader returns an IndexLoader for the index at `url`.
func NewIndexLoader(url string, client *http.Client) *IndexLoader {
	return &IndexLoader{url: url, client: client}
}

// Load returns the registry index.
func (loader *IndexLoader) Load(ctx context.Context) (Index, error) {
	loader.once.Do(func() {
		var resp struct {
			Entries Index `json:"entries"`
		}
		if err := getJSON(ctx, loader.client, loader.url, nil, &resp); err != nil {
			loader.err = errors.WithContext(err, "fetch registry index")
			return
		}
		loader.index = resp.Entries
	})
	return loader.index, loader.err
}
