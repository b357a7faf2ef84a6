package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/framelink/internal/protocol"
)

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

var (
	ErrInvalidSecurityMode     = errors.New("session: invalid security mode")
	ErrPeerURLRequired         = errors.New("session: peer url required")
	ErrCrossOriginPeer         = errors.New("session: peer url is not served from the trusted origin")
	ErrInsecureOrigin          = errors.New("session: https origin required")
	ErrInvalidHandshakeTimeout = errors.New("session: invalid handshake timeout")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

// Normalize applies defaults, enforces the origin policy and returns the
// config with both origins in serialized form, ready for exact comparison.
//
// The trusted origin is the only origin messages are sent to and accepted
// from, so it can never be a wildcard and the peer must be loaded from it.
func (c Config) Normalize() (Config, error) {
	c = c.WithDefaults()
	switch c.SecurityMode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}
	if c.PeerURL == "" {
		return Config{}, ErrPeerURLRequired
	}
	if c.HandshakeTimeout < 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidHandshakeTimeout, c.HandshakeTimeout)
	}

	trusted, err := protocol.ParseOrigin(c.TrustedOrigin)
	if err != nil {
		return Config{}, fmt.Errorf("session: trusted origin: %w", err)
	}
	host, err := protocol.ParseOrigin(c.HostOrigin)
	if err != nil {
		return Config{}, fmt.Errorf("session: host origin: %w", err)
	}
	peerOrigin, err := protocol.OriginOf(c.PeerURL)
	if err != nil {
		return Config{}, fmt.Errorf("session: peer url: %w", err)
	}
	if peerOrigin != trusted {
		return Config{}, fmt.Errorf("%w: peer=%s trusted=%s", ErrCrossOriginPeer, peerOrigin, trusted)
	}
	if c.SecurityMode == SecurityModeProduction {
		if !protocol.IsSecure(trusted) {
			return Config{}, fmt.Errorf("%w: trusted origin %s", ErrInsecureOrigin, trusted)
		}
		if !protocol.IsSecure(host) {
			return Config{}, fmt.Errorf("%w: host origin %s", ErrInsecureOrigin, host)
		}
	}
	c.TrustedOrigin = trusted
	c.HostOrigin = host
	return c, nil
}

func (c Config) Validate() error {
	_, err := c.Normalize()
	return err
}
