package config

import (
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

func mockHomedir() {
	homedirExpand = func(path string) (string, error) {
		if strings.HasPrefix(path, "~") {
			return "/home/user" + strings.TrimPrefix(path, "~"), nil
		}
		return path, nil
	}
}

func TestParse(t *testing.T) {
	out := "/home/user/.sandboxsync.yaml"

	expandedDefault := Default()
	expandedDefault.Typings.CacheDir = "/home/user/.cache/sandboxsync/typings"

	withOSStorage := expandedDefault
	withOSStorage.Quorum = 2
	withOSStorage.Storage = Storage{Type: StorageOS, Root: "/home/user/project"}

	unlimited := expandedDefault
	unlimited.MaxMessageSize = -1

	withoutCache := expandedDefault
	withoutCache.Typings.CacheDir = ""
	withoutCache.Typings.ServiceURL = "http://localhost:8080/typings"

	tests := []struct {
		name      string
		input     *string
		expConfig Config
		expError  error
	}{
		{
			name:      "MissingFile",
			expConfig: expandedDefault,
		},
		{
			name:      "EmptyFile",
			input:     strPtr(""),
			expConfig: expandedDefault,
		},
		{
			name:      "Partial",
			input:     strPtr("quorum: 2\nstorage:\n  type: os\n  root: project\n"),
			expConfig: withOSStorage,
		},
		{
			name: "Typings",
			input: strPtr(fmt.Sprintf("version: %s\ntypings:\n  serviceURL: %s\n  cacheDir: \"\"\n",
				SupportedVersion, "http://localhost:8080/typings")),
			expConfig: withoutCache,
		},
		{
			name:  "IncorrectVersion",
			input: strPtr("version: incorrect_version\nextra: fields\n"),
			expError: errors.WithContext(incompatibleVersionError{
				path:   out,
				exp:    SupportedVersion,
				actual: "incorrect_version",
			}, "parse"),
		},
		{
			name:  "ExtraFields",
			input: strPtr(fmt.Sprintf("version: %s\nextra: fields", SupportedVersion)),
			expError: errors.WithContext(
				errors.NewFriendlyError(parseConfigErrTemplate, out,
					errors.New("error unmarshaling JSON: while decoding JSON: "+
						`json: unknown field "extra"`)),
				"parse"),
		},
		{
			name:     "NegativeQuorum",
			input:    strPtr("quorum: -1\n"),
			expError: errors.NewFriendlyError("The quorum in %q must not be negative.", out),
		},
		{
			name:      "UnlimitedMessageSize",
			input:     strPtr("maxMessageSize: -1\n"),
			expConfig: unlimited,
		},
		{
			name:  "ZeroMessageSize",
			input: strPtr("maxMessageSize: 0\n"),
			expError: errors.NewFriendlyError(
				"The maxMessageSize in %q must be positive, or -1 to disable the limit.", out),
		},
	}

	mockHomedir()
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			if test.input != nil {
				assert.NoError(t, afero.WriteFile(fs, out, []byte(*test.input), 0644))
			}

			config, err := Parse("")
			assert.Equal(t, test.expConfig, config)
			assert.Equal(t, test.expError, err)
		})
	}
}

func TestParseExplicitPath(t *testing.T) {
	mockHomedir()
	fs = afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(fs, "/etc/sandboxsync/config.yaml",
		[]byte("storage:\n  type: os\n  root: data\n"), 0644))

	config, err := Parse("/etc/sandboxsync/config.yaml")
	assert.NoError(t, err)
	assert.Equal(t, Storage{Type: StorageOS, Root: "/etc/sandboxsync/data"}, config.Storage)
}

func strPtr(s string) *string {
	return &s
}
