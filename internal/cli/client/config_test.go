package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempConfig points the global config at a temp dir for one test.
func useTempConfig(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	oldGetConfigDir := getConfigDirFunc
	oldGetConfigPath := getConfigPathFunc
	getConfigDirFunc = func() (string, error) {
		return tmpDir, nil
	}
	getConfigPathFunc = func() (string, error) {
		return configPath, nil
	}
	t.Cleanup(func() {
		getConfigDirFunc = oldGetConfigDir
		getConfigPathFunc = oldGetConfigPath
	})
	return configPath
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.NotEmpty(t, dir)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "ragent"))
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "config.json"))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	useTempConfig(t)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid"), 0600))

	_, err := LoadGlobalConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_SetsPermissions(t *testing.T) {
	configPath := useTempConfig(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://localhost:9000"}))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "http://localhost:9000", parsed["api_url"])
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	err := SaveGlobalConfig(nil)
	assert.Error(t, err)
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://x"}))

	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))

	// deleting again is not an error
	assert.NoError(t, DeleteGlobalConfig())
}

func TestRoundTrip_SaveAndLoad(t *testing.T) {
	useTempConfig(t)

	original := &GlobalConfig{APIURL: "http://localhost:8085", Model: "llama3.2"}
	require.NoError(t, SaveGlobalConfig(original))

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, original, loaded)
}

func TestResolveAPIURL_Cascade(t *testing.T) {
	useTempConfig(t)
	t.Setenv(envAPIURL, "")

	url, source := ResolveAPIURL("")
	assert.Equal(t, defaultAPIURL, url)
	assert.Equal(t, SourceDefault, source)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://global:1"}))
	url, source = ResolveAPIURL("")
	assert.Equal(t, "http://global:1", url)
	assert.Equal(t, SourceGlobalConfig, source)

	t.Setenv(envAPIURL, "http://env:2")
	url, source = ResolveAPIURL("")
	assert.Equal(t, "http://env:2", url)
	assert.Equal(t, SourceEnv, source)

	url, source = ResolveAPIURL("http://flag:3")
	assert.Equal(t, "http://flag:3", url)
	assert.Equal(t, SourceFlag, source)
}
