package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBuffer is how long before expiry a token is refreshed.
	DefaultBuffer = 5 * time.Minute

	// DefaultRefreshTimeout bounds the token endpoint round trip.
	DefaultRefreshTimeout = 10 * time.Second

	// defaultLifetime is assumed when the endpoint omits expires_in.
	defaultLifetime = 3500 * time.Second
)

// ManagerConfig configures a Manager. Zero values select defaults.
type ManagerConfig struct {
	Buffer     time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *slog.Logger
}

// Manager hands out valid access tokens, refreshing and persisting them
// when they are close to expiry.
type Manager struct {
	store      Store
	buffer     time.Duration
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	inflight singleflight.Group
}

func NewManager(store Store, cfg ManagerConfig) *Manager {
	m := &Manager{
		store:      store,
		buffer:     cfg.Buffer,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if m.buffer <= 0 {
		m.buffer = DefaultBuffer
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRefreshTimeout
	}
	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// ResolveToken returns a usable access token for account. It returns ""
// with a nil error when the account has no stored credential. Concurrent
// calls for the same account share one refresh.
func (m *Manager) ResolveToken(ctx context.Context, account string) (string, error) {
	if err := ValidateAccount(account); err != nil {
		return "", err
	}
	v, err, _ := m.inflight.Do(account, func() (any, error) {
		return m.resolve(ctx, account)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) resolve(ctx context.Context, account string) (string, error) {
	cred, err := m.store.Load(ctx, account)
	if err != nil {
		return "", fmt.Errorf("load credential for %s: %w", account, err)
	}
	if cred == nil || cred.AccessToken == "" {
		return "", nil
	}

	now := m.now()
	if cred.Expiry.Add(-m.buffer).After(now) {
		return cred.AccessToken, nil
	}

	tok, err := m.refresh(ctx, cred)
	if err != nil {
		return "", &RefreshError{Account: account, Err: err}
	}
	cred.AccessToken = tok.AccessToken
	cred.Expiry = tok.Expiry
	if cred.Expiry.IsZero() {
		cred.Expiry = now.Add(defaultLifetime)
	}
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}

	if err := m.store.Save(ctx, account, cred); err != nil {
		m.logger.Warn("could not persist refreshed google token", "account", account, "error", err)
	} else {
		m.logger.Info("google token refreshed and persisted", "account", account, "expiry", cred.Expiry)
	}
	return cred.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, cred *Credential) (*oauth2.Token, error) {
	if cred.RefreshToken == "" {
		return nil, errors.New("credential has no refresh token")
	}
	if cred.TokenURI == "" {
		return nil, errors.New("credential has no token endpoint")
	}
	cfg := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cred.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("no access_token in response")
	}
	return tok, nil
}
