package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/framelink/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultLauncherName   = "launcher"
	DefaultLauncherAddr   = ":3000"
	DefaultPublicOrigin   = "http://localhost:3000"
	DefaultAllowedOrigin  = "http://localhost:8080"
	DefaultHandlerPath    = "/launcher-iframe-handler.html"
	DefaultWebSocketPath  = "/launcher/ws"
	DefaultHandshakeLimit = 10 * time.Second
)

// LauncherConfig configures the reference peer.
//
// AllowedOrigins are the host origins permitted to open a session; they are
// compared exactly against the Origin header. Token is a single shared
// token for development; Tokens lists the tokens accepted in production.
// At least one of the two is required. TokenTTL, when set, expires
// every token that long after the launcher starts. TLSCert and TLSKey are
// set together to serve https and wss directly. CallRate caps api_call per
// connection per second; zero leaves calls unlimited.
type LauncherConfig struct {
	Name           string   `toml:"name"`
	Addr           string   `toml:"addr"`
	PublicOrigin   string   `toml:"public_origin"`
	AllowedOrigins []string `toml:"allowed_origins"`
	Token          string   `toml:"token"`
	Tokens         []string `toml:"tokens"`
	TokenTTL       string   `toml:"token_ttl"`
	HandlerScript  string   `toml:"handler_script"`
	HandshakeLimit string   `toml:"handshake_limit"`
	SecurityMode   string   `toml:"security_mode"`
	TLSCert        string   `toml:"tls_cert"`
	TLSKey         string   `toml:"tls_key"`
	CallRate       float64  `toml:"call_rate"`
	CallBurst      int      `toml:"call_burst"`
}

func DefaultLauncherConfig() LauncherConfig {
	return LauncherConfig{
		Name:           DefaultLauncherName,
		Addr:           DefaultLauncherAddr,
		PublicOrigin:   DefaultPublicOrigin,
		AllowedOrigins: []string{DefaultAllowedOrigin},
		HandshakeLimit: DefaultHandshakeLimit.String(),
		SecurityMode:   "development",
	}
}

func LoadLauncherConfig(path string) (LauncherConfig, error) {
	cfg, err := ReadLauncherConfig(path)
	if err != nil {
		return LauncherConfig{}, err
	}
	if err := ValidateLauncherConfig(cfg); err != nil {
		return LauncherConfig{}, err
	}
	return cfg, nil
}

// ReadLauncherConfig parses path over the defaults without validating, so
// callers can apply overrides first.
func ReadLauncherConfig(path string) (LauncherConfig, error) {
	cfg := DefaultLauncherConfig()
	if err := loadToml(path, &cfg); err != nil {
		return LauncherConfig{}, err
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults fills blank fields and normalizes origins where possible.
// Invalid origins are left as-is for ValidateLauncherConfig to report.
func (c LauncherConfig) WithDefaults() LauncherConfig {
	d := DefaultLauncherConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = d.Name
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = d.Addr
	}
	if strings.TrimSpace(c.PublicOrigin) == "" {
		c.PublicOrigin = d.PublicOrigin
	}
	if origin, err := protocol.ParseOrigin(c.PublicOrigin); err == nil {
		c.PublicOrigin = origin
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = d.AllowedOrigins
	}
	normalized := make([]string, 0, len(c.AllowedOrigins))
	for _, raw := range c.AllowedOrigins {
		if origin, err := protocol.ParseOrigin(raw); err == nil {
			normalized = append(normalized, origin)
			continue
		}
		normalized = append(normalized, raw)
	}
	c.AllowedOrigins = normalized
	if strings.TrimSpace(c.HandshakeLimit) == "" {
		c.HandshakeLimit = d.HandshakeLimit
	}
	if strings.TrimSpace(c.SecurityMode) == "" {
		c.SecurityMode = d.SecurityMode
	}
	c.SecurityMode = strings.ToLower(strings.TrimSpace(c.SecurityMode))
	c.Token = strings.TrimSpace(c.Token)
	c.TLSCert = strings.TrimSpace(c.TLSCert)
	c.TLSKey = strings.TrimSpace(c.TLSKey)
	if c.CallRate > 0 && c.CallBurst <= 0 {
		c.CallBurst = max(1, int(c.CallRate))
	}
	return c
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateLauncherConfig(cfg LauncherConfig) error {
	if err := ValidateLauncherSettings(cfg); err != nil {
		return err
	}
	return validateTokens(cfg)
}

func validateTokens(cfg LauncherConfig) error {
	if cfg.Token == "" && len(cfg.Tokens) == 0 {
		return fmt.Errorf("launcher config requires token or at least one entry in tokens")
	}
	for i, token := range cfg.Tokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("tokens[%d] is empty", i)
		}
	}
	return nil
}

// ValidateLauncherSettings checks everything but the token list, for
// launchers that bring their own validator.
func ValidateLauncherSettings(cfg LauncherConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("launcher config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("launcher config missing addr")
	}
	public, err := protocol.ParseOrigin(cfg.PublicOrigin)
	if err != nil {
		return fmt.Errorf("launcher config public_origin: %w", err)
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("launcher config requires at least one allowed origin")
	}
	for i, raw := range cfg.AllowedOrigins {
		origin, err := protocol.ParseOrigin(raw)
		if err != nil {
			return fmt.Errorf("allowed_origins[%d] invalid: %w", i, err)
		}
		if cfg.SecurityMode == "production" && !protocol.IsSecure(origin) {
			return fmt.Errorf("allowed_origins[%d] must use https in production: %s", i, origin)
		}
	}
	if _, err := cfg.TTL(); err != nil {
		return err
	}
	if _, err := cfg.HandshakeTimeout(); err != nil {
		return err
	}
	switch cfg.SecurityMode {
	case "development":
	case "production":
		if !protocol.IsSecure(public) {
			return fmt.Errorf("launcher config public_origin must use https in production: %s", public)
		}
	default:
		return fmt.Errorf("launcher config unknown security_mode %q", cfg.SecurityMode)
	}
	if cfg.CallRate < 0 || cfg.CallBurst < 0 {
		return fmt.Errorf("launcher config call_rate and call_burst must not be negative")
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return fmt.Errorf("launcher config tls_cert and tls_key must be set together")
	}
	for field, path := range map[string]string{"tls_cert": cfg.TLSCert, "tls_key": cfg.TLSKey} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("launcher config %s: %w", field, err)
		}
	}
	if path := strings.TrimSpace(cfg.HandlerScript); path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("launcher config handler_script: %w", err)
		}
	}
	return nil
}

// TTL returns the parsed token_ttl; zero means tokens never expire.
func (c LauncherConfig) TTL() (time.Duration, error) {
	return parseDuration("token_ttl", c.TokenTTL)
}

// HandshakeTimeout bounds how long a connection may stay unauthenticated.
func (c LauncherConfig) HandshakeTimeout() (time.Duration, error) {
	return parseDuration("handshake_limit", c.HandshakeLimit)
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", field, d)
	}
	return d, nil
}
