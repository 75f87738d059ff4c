package typings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Masterminds/semver"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// DefaultNPMRegistryURL is the public npm registry.
const DefaultNPMRegistryURL = "https://registry.npmjs.org"

// abbreviatedMetadata is the Accept header that makes the registry return
// only the fields needed for installs.
const abbreviatedMetadata = "application/vnd.npm.install-v1+json"

const metadataCacheSize = 512

// Resolver maps requested versions to absolute versions.
type Resolver interface {
	Resolve(context.Context, DependencySet) (DependencySet, error)
}

// NoMatchingVersionError is returned when none of a package's published
// versions satisfy the requested version.
type NoMatchingVersionError struct {
	Name, Requested string
}

func (err NoMatchingVersionError) Error() string {
	return fmt.Sprintf("no version of %s matches %q", err.Name, err.Requested)
}

type packageMetadata struct {
	DistTags map[string]string   `json:"dist-tags"`
	Versions map[string]struct{} `json:"versions"`
}

// RegistryResolver resolves versions against an npm registry.
type RegistryResolver struct {
	registryURL string
	client      *http.Client
	concurrency int

	// metadata caches the registry's response for each package name.
	metadata *lru.Cache
}

// NewRegistryResolver returns a resolver that queries the registry at
// `registryURL`, with at most `concurrency` requests in flight. A
// non-positive concurrency means no limit.
func NewRegistryResolver(registryURL string, client *http.Client, concurrency int) (
	*RegistryResolver, error) {

	cache, err := lru.New(metadataCacheSize)
	if err != nil {
		return nil, errors.WithContext(err, "create metadata cache")
	}

	return &RegistryResolver{
		registryURL: strings.TrimSuffix(registryURL, "/"),
		client:      client,
		concurrency: concurrency,
		metadata:    cache,
	}, nil
}

// Resolve looks up every dependency concurrently. Requested versions that
// don't refer to the registry, such as git or tarball URLs, are returned
// unchanged. A dependency that can't be resolved is left out of the result,
// and an error is only returned if no dependency could be resolved.
func (r *RegistryResolver) Resolve(ctx context.Context, deps DependencySet) (DependencySet, error) {
	var lock sync.Mutex
	resolved := DependencySet{}
	var firstErr error

	var group errgroup.Group
	if r.concurrency > 0 {
		group.SetLimit(r.concurrency)
	}

	for _, name := range deps.Names() {
		name := name
		requested := deps[name]
		group.Go(func() error {
			version, err := r.resolveOne(ctx, name, requested)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				err = errors.WithContext(err, fmt.Sprintf("resolve %s@%s", name, requested))
				log.WithError(err).WithField("package", name).
					Debug("Skipping dependency that couldn't be resolved")

				lock.Lock()
				if firstErr == nil {
					firstErr = err
				}
				lock.Unlock()
				return nil
			}

			lock.Lock()
			resolved[name] = version
			lock.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if len(resolved) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return resolved, nil
}

func (r *RegistryResolver) resolveOne(ctx context.Context, name, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if !isRegistryVersion(requested) {
		log.WithField("package", name).WithField("version", requested).
			Debug("Not resolving version that doesn't refer to the registry")
		return requested, nil
	}

	meta, err := r.getMetadata(ctx, name)
	if err != nil {
		return "", err
	}
	return pickVersion(name, requested, meta)
}

func (r *RegistryResolver) getMetadata(ctx context.Context, name string) (packageMetadata, error) {
	if cached, ok := r.metadata.Get(name); ok {
		return cached.(packageMetadata), nil
	}

	url := fmt.Sprintf("%s/%s", r.registryURL, strings.Replace(name, "/", "%2f", 1))
	header := http.Header{"Accept": []string{abbreviatedMetadata}}

	var meta packageMetadata
	if err := getJSON(ctx, r.client, url, header, &meta); err != nil {
		return packageMetadata{}, errors.WithContext(err, "get package metadata")
	}

	r.metadata.Add(name, meta)
	return meta, nil
}

// pickVersion resolves a dist tag, exact version, or range to the highest
// matching published version.
func pickVersion(name, requested string, meta packageMetadata) (string, error) {
	if requested == "" || requested == "*" {
		requested = "latest"
	}

	if version, ok := meta.DistTags[requested]; ok {
		return version, nil
	}

	if _, ok := meta.Versions[requested]; ok {
		return requested, nil
	}

	constraint, err := semver.NewConstraint(requested)
	if err != nil {
		return "", NoMatchingVersionError{Name: name, Requested: requested}
	}

	var best *semver.Version
	for v := range meta.Versions {
		version, err := semver.NewVersion(v)
		if err != nil {
			continue
		}

		if constraint.Check(version) && (best == nil || version.GreaterThan(best)) {
			best = version
		}
	}

	if best == nil {
		return "", NoMatchingVersionError{Name: name, Requested: requested}
	}
	return best.Original(), nil
}

// isRegistryVersion returns false for requested versions that point
// somewhere other than the registry, such as `file:../lib`,
// `git+https://...`, `npm:other@1`, or `user/repo`.
func isRegistryVersion(requested string) bool {
	return !strings.Contains(requested, ":") && !strings.Contains(requested, "/")
}
