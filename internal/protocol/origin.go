package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

// OriginOf returns the serialized origin of an http(s) or ws(s) URL.
// ws maps to http and wss to https, so a websocket endpoint shares the origin
// of the site that serves it.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	return originFromURL(u)
}

// ParseOrigin validates and normalizes a bare origin such as
// "https://app.example:8443". Paths, queries, fragments, credentials,
// "*" and the opaque "null" origin are rejected.
func ParseOrigin(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch s {
	case "":
		return "", fmt.Errorf("%w: empty", ErrInvalidOrigin)
	case "*":
		return "", ErrWildcardOrigin
	case "null":
		return "", fmt.Errorf("%w: opaque origin", ErrInvalidOrigin)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	if u.User != nil || u.Opaque != "" || u.RawQuery != "" || u.Fragment != "" ||
		(u.Path != "" && u.Path != "/") {
		return "", fmt.Errorf("%w: %q is not a bare origin", ErrInvalidOrigin, s)
	}
	return originFromURL(u)
}

// SameOrigin reports exact equality of two serialized origins. No
// normalization happens here; an empty origin never matches.
func SameOrigin(a, b string) bool {
	return a != "" && a == b
}

// IsSecure reports whether a serialized origin uses https.
func IsSecure(origin string) bool {
	return strings.HasPrefix(origin, "https://")
}

func originFromURL(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidOrigin, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidOrigin)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port == defaultPort(scheme) {
		port = ""
	}
	if port == "" {
		return scheme + "://" + host, nil
	}
	return scheme + "://" + host + ":" + port, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}
