// Package auth checks the bootstrap tokens presented to the launcher.
//
// It has no storage of its own; tokens come from launcher config.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrTokenMissing = errors.New("auth: token missing")
	ErrExpired      = errors.New("auth: token expired")
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts a single shared token. Development only.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if token == "" {
		return ErrTokenMissing
	}
	if s.Token == "" || !equal(s.Token, token) {
		return ErrUnauthorized
	}
	return nil
}

// TokenSet accepts any of a fixed set of tokens.
type TokenSet []string

func (s TokenSet) Validate(token string) error {
	if token == "" {
		return ErrTokenMissing
	}
	ok := false
	for _, t := range s {
		// Every entry is compared so timing does not reveal the match index.
		if t != "" && equal(t, token) {
			ok = true
		}
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// ExpiringToken wraps a Validator with a fixed expiry.
type ExpiringToken struct {
	Validator Validator
	ExpiresAt time.Time
	Now       func() time.Time
}

func (e ExpiringToken) Validate(token string) error {
	if err := e.Validator.Validate(token); err != nil {
		return err
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	if !e.ExpiresAt.IsZero() && !now().Before(e.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Reason is the auth_failure reason reported to the client for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenMissing):
		return "Auth token missing"
	case errors.Is(err, ErrExpired):
		return "Token expired"
	case errors.Is(err, ErrUnauthorized):
		return "Invalid token"
	default:
		return strings.TrimPrefix(err.Error(), "auth: ")
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
