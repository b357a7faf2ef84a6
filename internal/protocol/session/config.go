package session

import (
	"strings"
	"time"

	"github.com/danmuck/framelink/internal/protocol"
)

const (
	DefaultTrustedOrigin = "http://localhost:3000"
	DefaultPeerPath      = "/launcher-iframe-handler.html"
	DefaultHostOrigin    = "http://localhost:8080"
	DefaultTokenParam    = "sdkAuthToken"
)

// Config defines the peer endpoint and handshake behavior.
//
// HandshakeTimeout of zero waits for the peer indefinitely. RequestIDs adds a
// generated requestId to every api_call for correlation with api_result.
type Config struct {
	PeerURL          string
	TrustedOrigin    string
	HostOrigin       string
	TokenParam       string
	HandshakeTimeout time.Duration
	RequestIDs       bool
	SecurityMode     SecurityMode
}

func DefaultConfig() Config {
	return Config{
		PeerURL:       DefaultTrustedOrigin + DefaultPeerPath,
		TrustedOrigin: DefaultTrustedOrigin,
		HostOrigin:    DefaultHostOrigin,
		TokenParam:    DefaultTokenParam,
		SecurityMode:  SecurityModeDevelopment,
	}
}

// WithDefaults fills unset fields. A missing peer URL is derived from the
// trusted origin and a missing trusted origin from the peer URL.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	c.PeerURL = strings.TrimSpace(c.PeerURL)
	c.TrustedOrigin = strings.TrimSpace(c.TrustedOrigin)
	switch {
	case c.PeerURL == "" && c.TrustedOrigin == "":
		c.PeerURL = d.PeerURL
		c.TrustedOrigin = d.TrustedOrigin
	case c.PeerURL == "":
		c.PeerURL = strings.TrimRight(c.TrustedOrigin, "/") + DefaultPeerPath
	case c.TrustedOrigin == "":
		if origin, err := protocol.OriginOf(c.PeerURL); err == nil {
			c.TrustedOrigin = origin
		}
	}
	if strings.TrimSpace(c.HostOrigin) == "" {
		c.HostOrigin = d.HostOrigin
	}
	if strings.TrimSpace(c.TokenParam) == "" {
		c.TokenParam = d.TokenParam
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}
