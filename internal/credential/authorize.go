package credential

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarv3 "google.golang.org/api/calendar/v3"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// Scopes requested when authorizing an account. Every source is read-only.
var Scopes = []string{
	gmailv1.GmailReadonlyScope,
	calendarv3.CalendarReadonlyScope,
}

// AuthorizeOptions configures the interactive authorization flow.
type AuthorizeOptions struct {
	// ClientSecretJSON is the OAuth client file downloaded from the Google
	// Cloud console.
	ClientSecretJSON []byte

	// In supplies pasted codes; Out receives prompts.
	In  io.Reader
	Out io.Writer

	// RedirectTimeout bounds the wait for the loopback redirect before
	// falling back to manual paste. Defaults to two minutes.
	RedirectTimeout time.Duration
}

// Authorize runs the OAuth authorization-code flow for a new account. It
// listens on a random loopback port for the redirect and falls back to a
// pasted code (or full redirect URL) when that does not arrive.
func Authorize(ctx context.Context, opts AuthorizeOptions) (*Credential, error) {
	cfg, err := google.ConfigFromJSON(opts.ClientSecretJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	if opts.RedirectTimeout <= 0 {
		opts.RedirectTimeout = 120 * time.Second
	}

	tok, err := tokenFromWeb(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     cfg.Endpoint.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Expiry:       tok.Expiry,
	}, nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, opts AuthorizeOptions) (*oauth2.Token, error) {
	out := opts.Out

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		port := ln.Addr().(*net.TCPAddr).Port
		redirect := fmt.Sprintf("http://127.0.0.1:%d/", port)
		oldRedirect := cfg.RedirectURL
		cfg.RedirectURL = redirect

		codes := make(chan string, 1)
		srv := &http.Server{ReadHeaderTimeout: 5 * time.Second}
		srv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case codes <- code:
			default:
			}
		})
		go func() { _ = srv.Serve(ln) }()
		defer func() { _ = srv.Shutdown(context.Background()) }()

		authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintln(out, "Open this URL in your browser to authorize read access to Gmail and Calendar:")
		fmt.Fprintln(out, authURL)
		fmt.Fprintf(out, "Waiting for redirect on %s …\n", redirect)

		select {
		case <-ctx.Done():
			cfg.RedirectURL = oldRedirect
			return nil, ctx.Err()
		case code := <-codes:
			fmt.Fprintln(out, "Exchanging code for token…")
			// The redirect URL must match the one used for AuthCodeURL.
			tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
			cfg.RedirectURL = oldRedirect
			if err != nil {
				return nil, fmt.Errorf("token exchange: %w", err)
			}
			return tok, nil
		case <-time.After(opts.RedirectTimeout):
			cfg.RedirectURL = oldRedirect
			fmt.Fprintln(out, "Timeout waiting for redirect; falling back to manual paste.")
		}
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(out, "Open this URL in your browser:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(out, "> ")

	sc := bufio.NewScanner(opts.In)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := codeFromInput(sc.Text())
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out, "Exchanging code for token…")
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// codeFromInput accepts either a bare authorization code or the full
// redirect URL carrying it in the "code" query parameter.
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	c := strings.TrimSpace(u.Query().Get("code"))
	if c == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return c, nil
}
