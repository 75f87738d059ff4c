package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/typings"
)

const (
	// DefaultPath is where the config is read from when no path is given.
	DefaultPath = "~/.sandboxsync.yaml"

	// SupportedVersion is the config version understood by this binary.
	// Config files that don't specify a version default to it.
	SupportedVersion = "v1alpha1"
)

// StorageType selects the filesystem backing the sandbox namespace.
type StorageType string

const (
	// StorageMemory keeps the namespace in memory.
	StorageMemory StorageType = "memory"

	// StorageOS keeps the namespace in a directory on the host.
	StorageOS StorageType = "os"
)

// parseConfigErrTemplate is a template for when we fail to parse yaml
// configuration files. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// Config configures a sync server.
type Config struct {
	Version string `json:"version,omitempty"`

	// Quorum is the number of contexts that must ask for the sandbox before
	// it's first published.
	Quorum        int    `json:"quorum"`
	ListenAddress string `json:"listenAddress"`

	// MaxMessageSize is the largest message in bytes accepted from a remote
	// context. -1 disables the limit.
	MaxMessageSize int64 `json:"maxMessageSize"`

	Storage     Storage `json:"storage"`
	SandboxRoot string  `json:"sandboxRoot"`

	ManifestName    string `json:"manifestName"`
	BuildConfigName string `json:"buildConfigName"`

	Typings Typings `json:"typings"`
}

// Storage configures the namespace filesystem.
type Storage struct {
	Type StorageType `json:"type"`

	// Root is the host directory used by StorageOS.
	Root string `json:"root,omitempty"`
}

// Typings configures where dependency typings come from.
type Typings struct {
	ServiceURL       string `json:"serviceURL"`
	RegistryIndexURL string `json:"registryIndexURL"`
	NPMRegistryURL   string `json:"npmRegistryURL"`

	// CacheDir is where immutable typings bundles are cached. Caching is
	// disabled if it's empty.
	CacheDir string `json:"cacheDir,omitempty"`

	// Concurrency limits the number of concurrent registry and bundle
	// requests. Zero means no limit.
	Concurrency int `json:"concurrency"`
}

// Default returns the config used for any field not set in the config file.
func Default() Config {
	return Config{
		Version:         SupportedVersion,
		Quorum:          3,
		ListenAddress:   ":9001",
		MaxMessageSize:  64 << 20,
		Storage:         Storage{Type: StorageMemory},
		SandboxRoot:     "/sandbox",
		ManifestName:    "package.json",
		BuildConfigName: "tsconfig.json",
		Typings: Typings{
			ServiceURL:       typings.DefaultServiceURL,
			RegistryIndexURL: typings.DefaultRegistryIndexURL,
			NPMRegistryURL:   typings.DefaultNPMRegistryURL,
			CacheDir:         "~/.cache/sandboxsync/typings",
			Concurrency:      8,
		},
	}
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of sandboxsync.\n"+
		"Expected version %q, but got %q.", err.path, err.exp, err.actual)
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Parse reads the config at `path`, or at DefaultPath if `path` is empty.
// If the file doesn't exist, the default config is returned.
func Parse(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path, err := homedirExpand(path)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}

	config := Default()
	if err := parseConfig(path, &config, SupportedVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Default().expand(filepath.Dir(path))
		}
		return Config{}, errors.WithContext(err, "parse")
	}

	if config.Quorum < 0 {
		return Config{}, errors.NewFriendlyError("The quorum in %q must not be negative.", path)
	}
	if config.MaxMessageSize == 0 || config.MaxMessageSize < -1 {
		return Config{}, errors.NewFriendlyError(
			"The maxMessageSize in %q must be positive, or -1 to disable the limit.", path)
	}
	return config.expand(filepath.Dir(path))
}

// expand resolves `~` in paths. Relative paths are evaluated relative to
// the config directory.
func (config Config) expand(configDir string) (Config, error) {
	var err error
	config.Storage.Root, err = expandPath(config.Storage.Root, configDir)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand storage root")
	}

	config.Typings.CacheDir, err = expandPath(config.Typings.CacheDir, configDir)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand cache dir")
	}
	return config, nil
}

func expandPath(path, relativeTo string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := homedirExpand(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(relativeTo, path)
	}
	return path, nil
}

func parseConfig(path string, config *Config, expVersion string) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if isPathNotFoundError(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if config.Version == "" {
		config.Version = expVersion
	}
	if config.Version != expVersion {
		return incompatibleVersionError{path, expVersion, config.Version}
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

func isPathNotFoundError(err error) bool {
	if fileErr, ok := err.(*os.PathError); ok &&
		fileErr.Op == "open" && os.IsNotExist(fileErr.Err) {
		return true
	}
	return false
}
