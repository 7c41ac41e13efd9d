package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eztest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: "https://eztest.example.com/"
api_key: key123
project_id: proj1
read_timeout_ms: 1500
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "https://eztest.example.com", c.ServerURL)
	assert.Equal(t, "https://eztest.example.com/api/", c.APIBaseURL())
	assert.Equal(t, DefaultConnectTimeoutMs, c.ConnectTimeoutMs)
	assert.Equal(t, 1500, c.ReadTimeoutMs)
	assert.Equal(t, "AUTOMATION", c.RunEnvironment())
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eztest.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url = "http://localhost:3000"
api_key = "k"
project_id = "p"
environment = "QA"
cache_size = 10
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", c.ServerURL)
	assert.Equal(t, "QA", c.RunEnvironment())
	assert.Equal(t, 10, c.CacheSize)
}

func TestEnvOverridesFile(t *testing.T) {
	c := Default()
	c.ProjectID = "from-file"
	env := map[string]string{"EZTEST_PROJECT_ID": "from-env", "EZTEST_API_KEY": "  "}
	c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, "from-env", c.ProjectID)
	assert.Empty(t, c.APIKey)
}

func TestValidateReportsAllProblems(t *testing.T) {
	c := &Config{}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server url")
	assert.Contains(t, err.Error(), "api key")
	assert.Contains(t, err.Error(), "project id")
	assert.Contains(t, err.Error(), "connect timeout")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestForProject(t *testing.T) {
	c := Default()
	c.ProjectID = "a"
	other := c.ForProject("b")
	assert.Equal(t, "a", c.ProjectID)
	assert.Equal(t, "b", other.ProjectID)
}
