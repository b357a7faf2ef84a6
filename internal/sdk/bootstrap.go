package sdk

import (
	"net/url"
	"strings"

	"github.com/danmuck/framelink/internal/protocol/session"
)

// TokenFromPageURL reads the bootstrap token from the query string of the
// page that hosts the client. An empty key means session.DefaultTokenParam.
// A URL that does not parse yields no token.
func TokenFromPageURL(pageURL, key string) string {
	if strings.TrimSpace(key) == "" {
		key = session.DefaultTokenParam
	}
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}
