package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/danmuck/framelink/internal/sdk"
	"github.com/kelseyhightower/envconfig"
)

const (
	envPrefix          = "FRAMELINK"
	defaultConfigPath  = "cmd/sdkctl/config.toml"
	transportWebSocket = "websocket"
	transportSandbox   = "sandbox"
)

// clientConfig is everything sdkctl needs to drive one client.
type clientConfig struct {
	Session   session.Config
	Transport string
	Token     string
	PageURL   string
}

type fileConfig struct {
	PeerURL          string `toml:"peer_url"`
	TrustedOrigin    string `toml:"trusted_origin"`
	HostOrigin       string `toml:"host_origin"`
	TokenParam       string `toml:"token_param"`
	Transport        string `toml:"transport"`
	Token            string `toml:"token"`
	PageURL          string `toml:"page_url"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	RequestIDs       bool   `toml:"request_ids"`
	SecurityMode     string `toml:"security_mode"`
}

// envConfig is read with the FRAMELINK prefix. Pointer fields stay nil when
// the variable is unset so they never clobber file values.
type envConfig struct {
	PeerURL          string         `envconfig:"PEER_URL"`
	TrustedOrigin    string         `envconfig:"TRUSTED_ORIGIN"`
	HostOrigin       string         `envconfig:"HOST_ORIGIN"`
	TokenParam       string         `envconfig:"TOKEN_PARAM"`
	Transport        string         `envconfig:"TRANSPORT"`
	Token            string         `envconfig:"TOKEN"`
	PageURL          string         `envconfig:"PAGE_URL"`
	HandshakeTimeout *time.Duration `envconfig:"HANDSHAKE_TIMEOUT"`
	RequestIDs       *bool          `envconfig:"REQUEST_IDS"`
	SecurityMode     string         `envconfig:"SECURITY_MODE"`
}

// flagOverrides holds command line values; only flags reported as changed
// are applied.
type flagOverrides struct {
	PeerURL          string
	TrustedOrigin    string
	HostOrigin       string
	Transport        string
	Token            string
	PageURL          string
	HandshakeTimeout time.Duration
	RequestIDs       bool
	SecurityMode     string
}

func defaultClientConfig() clientConfig {
	cfg := session.DefaultConfig()
	cfg.PeerURL = session.DefaultTrustedOrigin + config.DefaultWebSocketPath
	cfg.HandshakeTimeout = 10 * time.Second
	return clientConfig{Session: cfg, Transport: transportWebSocket}
}

// loadClientConfig layers defaults, the toml file, then the environment. A
// missing file is only an error when the path was given explicitly.
func loadClientConfig(path string, explicit bool) (clientConfig, error) {
	cfg := defaultClientConfig()
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := applyFile(path, &cfg); err != nil {
			return clientConfig{}, err
		}
	} else if explicit {
		return clientConfig{}, fmt.Errorf("load sdk config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

func applyFile(path string, cfg *clientConfig) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load sdk config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load sdk config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("peer_url") {
		cfg.Session.PeerURL = strings.TrimSpace(raw.PeerURL)
	}
	if meta.IsDefined("trusted_origin") {
		cfg.Session.TrustedOrigin = strings.TrimSpace(raw.TrustedOrigin)
	}
	if meta.IsDefined("host_origin") {
		cfg.Session.HostOrigin = strings.TrimSpace(raw.HostOrigin)
	}
	if meta.IsDefined("token_param") {
		cfg.Session.TokenParam = strings.TrimSpace(raw.TokenParam)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.TrimSpace(raw.Transport)
	}
	if meta.IsDefined("token") {
		cfg.Token = raw.Token
	}
	if meta.IsDefined("page_url") {
		cfg.PageURL = strings.TrimSpace(raw.PageURL)
	}
	if meta.IsDefined("handshake_timeout") {
		value := strings.TrimSpace(raw.HandshakeTimeout)
		if value == "" {
			cfg.Session.HandshakeTimeout = 0
		} else {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("parse handshake_timeout: %w", err)
			}
			cfg.Session.HandshakeTimeout = d
		}
	}
	if meta.IsDefined("request_ids") {
		cfg.Session.RequestIDs = raw.RequestIDs
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	return nil
}

func applyEnv(cfg *clientConfig) error {
	var env envConfig
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("load sdk env: %w", err)
	}
	setString(&cfg.Session.PeerURL, env.PeerURL)
	setString(&cfg.Session.TrustedOrigin, env.TrustedOrigin)
	setString(&cfg.Session.HostOrigin, env.HostOrigin)
	setString(&cfg.Session.TokenParam, env.TokenParam)
	setString(&cfg.Transport, env.Transport)
	setString(&cfg.Token, env.Token)
	setString(&cfg.PageURL, env.PageURL)
	if env.HandshakeTimeout != nil {
		cfg.Session.HandshakeTimeout = *env.HandshakeTimeout
	}
	if env.RequestIDs != nil {
		cfg.Session.RequestIDs = *env.RequestIDs
	}
	if mode := strings.TrimSpace(env.SecurityMode); mode != "" {
		cfg.Session.SecurityMode = session.SecurityMode(mode)
	}
	return nil
}

func (o flagOverrides) apply(cfg *clientConfig, changed func(name string) bool) {
	if changed("peer-url") {
		cfg.Session.PeerURL = strings.TrimSpace(o.PeerURL)
	}
	if changed("trusted-origin") {
		cfg.Session.TrustedOrigin = strings.TrimSpace(o.TrustedOrigin)
	}
	if changed("host-origin") {
		cfg.Session.HostOrigin = strings.TrimSpace(o.HostOrigin)
	}
	if changed("transport") {
		cfg.Transport = strings.TrimSpace(o.Transport)
	}
	if changed("token") {
		cfg.Token = o.Token
	}
	if changed("page-url") {
		cfg.PageURL = strings.TrimSpace(o.PageURL)
	}
	if changed("handshake-timeout") {
		cfg.Session.HandshakeTimeout = o.HandshakeTimeout
	}
	if changed("request-ids") {
		cfg.Session.RequestIDs = o.RequestIDs
	}
	if changed("security-mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(o.SecurityMode))
	}
}

// finalize normalizes the session config and resolves the bootstrap token.
// An explicit token wins over one carried in the page URL.
func (c clientConfig) finalize() (clientConfig, error) {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	switch c.Transport {
	case "":
		c.Transport = transportWebSocket
	case transportWebSocket, transportSandbox:
	default:
		return clientConfig{}, fmt.Errorf("unknown transport %q (want %s|%s)", c.Transport, transportWebSocket, transportSandbox)
	}
	normalized, err := c.Session.Normalize()
	if err != nil {
		return clientConfig{}, err
	}
	c.Session = normalized
	if c.Token == "" && c.PageURL != "" {
		c.Token = sdk.TokenFromPageURL(c.PageURL, c.Session.TokenParam)
	}
	return c, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
