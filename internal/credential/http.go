package credential

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// BearerClient returns an HTTP client that sends token as a bearer
// credential. It never refreshes; callers resolve the token first.
func BearerClient(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}
