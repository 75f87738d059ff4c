package typings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	manifest, err := ParseManifest([]byte(`{
		"name": "app",
		"dependencies": {"react": "^18.0.0"},
		"devDependencies": {"typescript": "5.4.5"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Manifest{
		Dependencies:    map[string]string{"react": "^18.0.0"},
		DevDependencies: map[string]string{"typescript": "5.4.5"},
	}, manifest)

	_, err = ParseManifest([]byte(`{"dependencies": {"react": 18}}`))
	assert.Error(t, err)

	_, err = ParseManifest([]byte(`{`))
	assert.Error(t, err)
}

func TestBuildDependencies(t *testing.T) {
	deps := BuildDependencies(Manifest{
		Dependencies: map[string]string{
			"react":       "^18.0.0",
			"@types/jest": "29.5.0",
		},
		DevDependencies: map[string]string{
			"react": "18.2.0",
		},
	})

	assert.Equal(t, DependencySet{
		"@types/jest": "29.5.0",
		"react":       "18.2.0",
	}, deps)
	assert.Equal(t, DependencySet{"@types/jest": "latest"}, Baseline)
}

func TestAddTypesPackages(t *testing.T) {
	deps := DependencySet{
		"@types/jest":  "latest",
		"left-pad":     "1.0.0",
		"react":        "^18.0.0",
		"@types/react": "18.0.0",
		"@babel/core":  "7.0.0",
		"no-types":     "1.0.0",
	}
	index := Index{
		"left-pad":    {Latest: "1.3.0"},
		"react":       {Latest: "18.3.1"},
		"babel__core": {Latest: "7.20.5"},
		"jest":        {Latest: "29.5.12"},
	}

	AddTypesPackages(deps, index)
	assert.Equal(t, DependencySet{
		"@types/jest":        "latest",
		"left-pad":           "1.0.0",
		"@types/left-pad":    "1.3.0",
		"react":              "^18.0.0",
		"@types/react":       "18.0.0",
		"@babel/core":        "7.0.0",
		"@types/babel__core": "7.20.5",
		"no-types":           "1.0.0",
	}, deps)
}

func TestTypesPackageName(t *testing.T) {
	assert.Equal(t, "@types/left-pad", TypesPackageName("left-pad"))
	assert.Equal(t, "@types/babel__core", TypesPackageName("@babel/core"))
}

func TestNames(t *testing.T) {
	deps := DependencySet{"b": "1", "a": "2", "@c/d": "3"}
	assert.Equal(t, []string{"@c/d", "a", "b"}, deps.Names())
}
