package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadClientConfigExampleFile(t *testing.T) {
	cfg, err := loadClientConfig("ex.config.toml", true)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/launcher/ws", cfg.Session.PeerURL)
	assert.Equal(t, "http://localhost:3000", cfg.Session.TrustedOrigin)
	assert.Equal(t, "http://localhost:8080", cfg.Session.HostOrigin)
	assert.Equal(t, transportWebSocket, cfg.Transport)
	assert.Equal(t, "temp-auth-key", cfg.Token)
	assert.Equal(t, 5*time.Second, cfg.Session.HandshakeTimeout)
	assert.True(t, cfg.Session.RequestIDs)
	assert.Equal(t, session.SecurityModeDevelopment, cfg.Session.SecurityMode)
}

func TestLoadClientConfigDefaultsWhenFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := loadClientConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, defaultClientConfig(), cfg)

	_, err = loadClientConfig(missing, true)
	require.Error(t, err)
}

func TestLoadClientConfigKeepsUndefinedKeys(t *testing.T) {
	path := writeConfig(t, `transport = "sandbox"
handshake_timeout = ""
`)
	cfg, err := loadClientConfig(path, true)
	require.NoError(t, err)

	d := defaultClientConfig()
	assert.Equal(t, transportSandbox, cfg.Transport)
	assert.Zero(t, cfg.Session.HandshakeTimeout)
	assert.Equal(t, d.Session.PeerURL, cfg.Session.PeerURL)
	assert.Equal(t, d.Session.HostOrigin, cfg.Session.HostOrigin)
}

func TestLoadClientConfigRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"bad duration": `handshake_timeout = "soon"`,
		"unknown key":  `peer = "http://localhost:3000"`,
		"bad toml":     `peer_url = `,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadClientConfig(writeConfig(t, body), true)
			require.Error(t, err)
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("FRAMELINK_TOKEN", "env-token")
	t.Setenv("FRAMELINK_HANDSHAKE_TIMEOUT", "250ms")
	t.Setenv("FRAMELINK_REQUEST_IDS", "false")
	t.Setenv("FRAMELINK_TRANSPORT", "sandbox")

	cfg, err := loadClientConfig("ex.config.toml", true)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.HandshakeTimeout)
	assert.False(t, cfg.Session.RequestIDs)
	assert.Equal(t, transportSandbox, cfg.Transport)
	assert.Equal(t, "http://localhost:3000", cfg.Session.TrustedOrigin)
}

func TestEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("FRAMELINK_HANDSHAKE_TIMEOUT", "later")
	_, err := loadClientConfig(filepath.Join(t.TempDir(), "absent.toml"), false)
	require.Error(t, err)
}

func TestFlagOverridesOnlyChanged(t *testing.T) {
	cfg, err := loadClientConfig("ex.config.toml", true)
	require.NoError(t, err)

	o := flagOverrides{
		Token:            "flag-token",
		HandshakeTimeout: time.Second,
		PeerURL:          "http://ignored:1/",
	}
	changed := map[string]bool{"token": true, "handshake-timeout": true}
	o.apply(&cfg, func(name string) bool { return changed[name] })

	assert.Equal(t, "flag-token", cfg.Token)
	assert.Equal(t, time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, "http://localhost:3000/launcher/ws", cfg.Session.PeerURL)
}

func TestFinalize(t *testing.T) {
	base := defaultClientConfig()

	t.Run("normalizes origins", func(t *testing.T) {
		c := base
		c.Session.TrustedOrigin = "HTTP://LocalHost:3000/"
		got, err := c.finalize()
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:3000", got.Session.TrustedOrigin)
		assert.Equal(t, transportWebSocket, got.Transport)
	})

	t.Run("token from page url", func(t *testing.T) {
		c := base
		c.PageURL = "http://localhost:8080/app?sdkAuthToken=page-token"
		got, err := c.finalize()
		require.NoError(t, err)
		assert.Equal(t, "page-token", got.Token)
	})

	t.Run("explicit token wins", func(t *testing.T) {
		c := base
		c.Token = "explicit"
		c.PageURL = "http://localhost:8080/app?sdkAuthToken=page-token"
		got, err := c.finalize()
		require.NoError(t, err)
		assert.Equal(t, "explicit", got.Token)
	})

	t.Run("unknown transport", func(t *testing.T) {
		c := base
		c.Transport = "carrier-pigeon"
		_, err := c.finalize()
		require.Error(t, err)
	})

	t.Run("cross origin peer", func(t *testing.T) {
		c := base
		c.Session.PeerURL = "http://elsewhere:3000/launcher/ws"
		_, err := c.finalize()
		require.ErrorIs(t, err, session.ErrCrossOriginPeer)
	})
}

func TestParsePayload(t *testing.T) {
	got, err := parsePayload("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = parsePayload(`{"text":"hi","n":2}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi", "n": float64(2)}, got)

	_, err = parsePayload(`[1,2]`)
	require.Error(t, err)
}

func TestGeneratedTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdk.toml")
	require.NoError(t, config.WriteTemplate(path, "sdk", false))

	cfg, err := loadClientConfig(path, true)
	require.NoError(t, err)
	_, err = cfg.finalize()
	require.NoError(t, err)
	assert.True(t, cfg.Session.RequestIDs)
	assert.Equal(t, transportWebSocket, cfg.Transport)
}
