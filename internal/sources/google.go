package sources

import (
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// googleOptions builds client options for a per-request bearer token.
// extra is appended last so callers can override the endpoint or the
// HTTP client.
func googleOptions(creds Credentials, extra []option.ClientOption) []option.ClientOption {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	return append(opts, extra...)
}
