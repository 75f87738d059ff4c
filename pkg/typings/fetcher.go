package typings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/peterbourgon/diskv"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// DefaultServiceURL serves the declaration bundle of a package version.
const DefaultServiceURL = "https://ata-fetcher.cloud/api/v5/typings"

// Fetcher downloads the declaration files of a single package version.
type Fetcher interface {
	Fetch(ctx context.Context, name, version string) (map[string]string, error)
}

type bundle struct {
	Files map[string]string `json:"files"`
}

// BundleFetcher fetches bundles from the typings service. Bundles of exact
// versions never change, so they're optionally cached on disk.
type BundleFetcher struct {
	serviceURL string
	client     *http.Client
	cache      *diskv.Diskv
}

// NewBundleFetcher returns a fetcher for the service at `serviceURL`. If
// `cacheDir` is empty, bundles aren't cached.
func NewBundleFetcher(serviceURL string, client *http.Client, cacheDir string) *BundleFetcher {
	fetcher := &BundleFetcher{
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		client:     client,
	}

	if cacheDir != "" {
		fetcher.cache = diskv.New(diskv.Options{
			BasePath:     cacheDir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 32 * 1024 * 1024,
		})
	}
	return fetcher
}

// Fetch returns the declaration files of `name@version`, keyed by their
// path relative to the package root.
func (f *BundleFetcher) Fetch(ctx context.Context, name, version string) (map[string]string, error) {
	key := cacheKey(name, version)
	cacheable := f.cache != nil && isExactVersion(version)
	if cacheable {
		if files, ok := f.readCache(key); ok {
			return files, nil
		}
	}

	url := fmt.Sprintf("%s/%s@%s.json", f.serviceURL, name, version)
	var resp bundle
	if err := getJSON(ctx, f.client, url, nil, &resp); err != nil {
		return nil, errors.WithContext(err, "fetch bundle")
	}
	if resp.Files == nil {
		resp.Files = map[string]string{}
	}

	if cacheable {
		f.writeCache(key, resp)
	}
	return resp.Files, nil
}

func (f *BundleFetcher) readCache(key string) (map[string]string, bool) {
	if !f.cache.Has(key) {
		return nil, false
	}

	contents, err := f.cache.Read(key)
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("Failed to read cached bundle")
		return nil, false
	}

	var cached bundle
	if err := json.Unmarshal(contents, &cached); err != nil {
		log.WithError(err).WithField("key", key).Debug("Ignoring corrupt cached bundle")
		return nil, false
	}
	return cached.Files, true
}

func (f *BundleFetcher) writeCache(key string, b bundle) {
	contents, err := json.Marshal(b)
	if err == nil {
		err = f.cache.Write(key, contents)
	}
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("Failed to cache bundle")
	}
}

// cacheKey flattens the package name so that the key is a valid file name.
func cacheKey(name, version string) string {
	return strings.NewReplacer("/", "__", "@", "").Replace(name) + "@" + version
}

// isExactVersion returns whether `version` names a single release, such as
// `1.0.0`, rather than a tag or a range.
func isExactVersion(version string) bool {
	if _, err := semver.NewVersion(version); err != nil {
		return false
	}
	return strings.Count(version, ".") >= 2 && !strings.ContainsAny(version, "vx*^~<>= ")
}
