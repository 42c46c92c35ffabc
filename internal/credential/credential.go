// Package credential loads, refreshes and persists the Google OAuth
// credential shared by the mailbox and calendar sources.
//
// Records are stored one per account. The on-disk JSON layout matches the
// files written by google_workspace_mcp, so an existing credentials
// directory can be reused as is.
package credential

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Credential is the OAuth material for one account. Only the Manager
// reads RefreshToken and ClientSecret; sources receive the access token.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Expiry       time.Time
}

// record is the JSON form of a Credential.
type record struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

// expiryLayout matches JavaScript's Date.toISOString.
const expiryLayout = "2006-01-02T15:04:05.000Z07:00"

// Naive timestamps (no offset) are written by google-auth and are UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseExpiry(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, l := range expiryLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	// An unreadable expiry is treated as already expired.
	return time.Time{}
}

func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toRecord())
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*c = Credential{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		TokenURI:     r.TokenURI,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Scopes:       r.Scopes,
		Expiry:       parseExpiry(r.Expiry),
	}
	return nil
}

func (c Credential) toRecord() record {
	r := record{
		Token:        c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenURI:     c.TokenURI,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes,
	}
	if !c.Expiry.IsZero() {
		r.Expiry = c.Expiry.UTC().Format(expiryLayout)
	}
	return r
}

var accountPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateAccount checks that account looks like an e-mail address. Account
// names become file names, so anything else is rejected.
func ValidateAccount(account string) error {
	if !accountPattern.MatchString(account) {
		return fmt.Errorf("invalid google account %q: expected an e-mail address", account)
	}
	return nil
}

// RefreshError reports a failed refresh exchange with the token endpoint.
type RefreshError struct {
	Account string
	Err     error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("google token refresh for %s failed: %v", e.Account, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
