package clients

import (
	"net/http"

	"golang.org/x/oauth2"
)

// NewBearerTransport wraps base so every request carries
// "Authorization: Bearer {token}". The token is assumed valid for the whole
// run; obtaining or refreshing it happens outside the tap.
func NewBearerTransport(token string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}),
		Base: base,
	}
}
