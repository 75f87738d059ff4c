package typings

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// typesScope is the scope that type declaration packages are published
// under.
const typesScope = "@types/"

// Baseline is always part of the dependency set, so that test files get
// typings even in projects that don't declare a test framework.
var Baseline = DependencySet{"@types/jest": "latest"}

// Manifest contains the fields of a package.json that affect typings.
type Manifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ParseManifest parses the contents of a package.json.
func ParseManifest(contents []byte) (Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(contents, &manifest); err != nil {
		return Manifest{}, errors.WithContext(err, "parse manifest")
	}
	return manifest, nil
}

// DependencySet maps package names to the version that's requested.
type DependencySet map[string]string

// Names returns the package names in sorted order.
func (deps DependencySet) Names() []string {
	var names []string
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildDependencies merges the baseline with the manifest's dependencies.
// Later sources override earlier ones, so dev dependencies win over
// dependencies, which win over the baseline.
func BuildDependencies(manifest Manifest) DependencySet {
	deps := DependencySet{}
	for _, source := range []map[string]string{Baseline, manifest.Dependencies, manifest.DevDependencies} {
		for name, version := range source {
			deps[name] = version
		}
	}
	return deps
}

// AddTypesPackages adds the type declaration package of every dependency
// that doesn't already have one, if the registry index knows about it.
func AddTypesPackages(deps DependencySet, index Index) {
	for _, name := range deps.Names() {
		if strings.HasPrefix(name, typesScope) {
			continue
		}

		typesName := TypesPackageName(name)
		if _, ok := deps[typesName]; ok {
			continue
		}

		if entry, ok := index[strings.TrimPrefix(typesName, typesScope)]; ok && entry.Latest != "" {
			deps[typesName] = entry.Latest
		}
	}
}

// TypesPackageName returns the name of the package that contains the type
// declarations for `name`. Scoped packages are flattened, so
// `@babel/core` becomes `@types/babel__core`.
func TypesPackageName(name string) string {
	if strings.HasPrefix(name, "@") {
		name = strings.Replace(strings.TrimPrefix(name, "@"), "/", "__", 1)
	}
	return typesScope + name
}
