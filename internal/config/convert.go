package config

import (
	"time"

	"github.com/danmuck/framelink/internal/auth"
)

// Validator builds the token check for cfg. A lone token becomes a
// StaticToken; otherwise every configured token is accepted. With a TTL,
// tokens expire that long after start.
func (c LauncherConfig) Validator(start time.Time) (auth.Validator, error) {
	if err := validateTokens(c); err != nil {
		return nil, err
	}
	ttl, err := c.TTL()
	if err != nil {
		return nil, err
	}
	var v auth.Validator
	if len(c.Tokens) == 0 {
		v = auth.StaticToken{Token: c.Token}
	} else {
		tokens := append([]string(nil), c.Tokens...)
		if c.Token != "" {
			tokens = append(tokens, c.Token)
		}
		v = auth.TokenSet(tokens)
	}
	if ttl > 0 {
		v = auth.ExpiringToken{Validator: v, ExpiresAt: start.Add(ttl)}
	}
	return v, nil
}
