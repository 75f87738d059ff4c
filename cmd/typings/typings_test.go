package typings

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sandboxsync/pkg/config"
	"github.com/sidkik/sandboxsync/pkg/errors"
)

func newTestConfig(t *testing.T) config.Config {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.json":
			fmt.Fprint(w, `{"entries": {}}`)
		case "/registry/@types/jest":
			fmt.Fprint(w, `{"dist-tags": {"latest": "29.5.12"}, "versions": {"29.5.12": {}}}`)
		case "/registry/react":
			fmt.Fprint(w, `{"dist-tags": {"latest": "18.2.0"}, "versions": {"18.2.0": {}}}`)
		case "/typings/@types/jest@29.5.12.json":
			fmt.Fprint(w, `{"files": {"/@types/jest/index.d.ts": "declare const test: any;"}}`)
		case "/typings/react@18.2.0.json":
			fmt.Fprint(w, `{"files": {"/react/index.d.ts": "export {}", "/react/jsx.d.ts": "export {}"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Typings = config.Typings{
		ServiceURL:       server.URL + "/typings",
		RegistryIndexURL: server.URL + "/index.json",
		NPMRegistryURL:   server.URL + "/registry",
		Concurrency:      2,
	}
	return cfg
}

func TestRun(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/package.json",
		[]byte(`{"dependencies": {"react": "^18.0.0"}}`), 0644))

	paths, err := run(context.Background(), newTestConfig(t), "/project")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/@types/jest/index.d.ts",
		"/react/index.d.ts",
		"/react/jsx.d.ts",
	}, paths)
}

func TestRunMissingManifest(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := run(context.Background(), newTestConfig(t), "/project")
	_, ok := errors.GetFriendlyMessage(err)
	assert.True(t, ok)
}

func TestRunMalformedManifest(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/package.json", []byte(`{`), 0644))

	_, err := run(context.Background(), newTestConfig(t), "/project")
	assert.Error(t, err)
}
