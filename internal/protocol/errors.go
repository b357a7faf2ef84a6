package protocol

import "errors"

var (
	ErrMalformedMessage = errors.New("protocol: malformed message")
	ErrInvalidOrigin    = errors.New("protocol: invalid origin")
	ErrWildcardOrigin   = errors.New("protocol: wildcard origin not allowed")
)
