package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLauncherConfig(), cfg)

	_, err = loadConfig(missing, true)
	require.Error(t, err)
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.toml")
	body := `name = "edge"
addr = "127.0.0.1:0"
tokens = ["alpha"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := loadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Name)
	assert.Equal(t, "127.0.0.1:0", cfg.Addr)
	assert.Equal(t, []string{"alpha"}, cfg.Tokens)
}

func TestLoadConfigInvalidFileIsNotMasked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.toml")
	require.NoError(t, os.WriteFile(path, []byte(`handshake_limit = "never"`), 0o600))

	_, err := resolveConfig(path, false, overrides{tokens: []string{"abc123"}})
	require.Error(t, err)
}

func TestResolveConfigAppliesFlagsBeforeValidating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.toml")
	require.NoError(t, os.WriteFile(path, []byte(`name = "edge"`), 0o600))

	_, err := resolveConfig(path, true, overrides{})
	require.Error(t, err, "a file without tokens needs --token")

	cfg, err := resolveConfig(path, true, overrides{
		addr:    "127.0.0.1:0",
		addrSet: true,
		tokens:  []string{"from-flag"},
	})
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Name)
	assert.Equal(t, "127.0.0.1:0", cfg.Addr)
	assert.Equal(t, []string{"from-flag"}, cfg.Tokens)

	_, err = launcher.New(cfg)
	require.NoError(t, err)
}
