package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DariyDar/astra/internal/briefing"
	"github.com/DariyDar/astra/internal/calendar"
	"github.com/DariyDar/astra/internal/clickup"
	"github.com/DariyDar/astra/internal/config"
	"github.com/DariyDar/astra/internal/credential"
	"github.com/DariyDar/astra/internal/gmail"
	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"
	"github.com/DariyDar/astra/internal/slack"
	"github.com/DariyDar/astra/internal/store"
)

// App is the wired engine behind every command.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   credential.Store
	Tokens  *credential.Manager
	Service *briefing.Service

	closers []func() error
}

// OpenStore opens the configured credential backend. The returned close
// function is never nil.
func OpenStore(cfg *config.Config) (credential.Store, func() error, error) {
	switch cfg.Google.CredentialsBackend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.CredentialsDB())
		if err != nil {
			return nil, nil, fmt.Errorf("open credential db: %w", err)
		}
		return s, s.Close, nil
	default:
		return credential.NewFileStore(cfg.CredentialsDir()), func() error { return nil }, nil
	}
}

// Build wires config into the credential manager, the four fetchers and
// the query service.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, closeStore, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Store: st, closers: []func() error{closeStore}}

	app.Tokens = credential.NewManager(st, credential.ManagerConfig{
		Buffer:  cfg.RefreshBuffer(),
		Timeout: cfg.RefreshTimeout(),
		Logger:  logger.With("component", "credential"),
	})

	account := cfg.Google.Account
	fetchers := map[model.SourceKind]briefing.Fetcher{
		model.SourceSlack: slack.NewFetcher(slack.Config{
			Token:           cfg.Slack.Token,
			TeamID:          cfg.Slack.TeamID,
			DefaultChannels: cfg.Slack.DefaultChannels,
			Timeout:         cfg.ListTimeout(),
			APIURL:          cfg.Slack.APIURL,
			Logger:          logger.With("source", model.SourceSlack),
		}, nil),
		model.SourceGmail: gmail.New(gmail.Config{
			Account:        account,
			ListTimeout:    cfg.ListTimeout(),
			MessageTimeout: cfg.MessageTimeout(),
			Workers:        cfg.Google.GmailWorkers,
			Logger:         logger.With("source", model.SourceGmail),
		}),
		model.SourceCalendar: calendar.New(calendar.Config{
			Account: account,
			Timeout: cfg.ListTimeout(),
		}),
		model.SourceClickUp: clickup.NewFetcher(clickup.Config{
			BaseURL: cfg.ClickUp.BaseURL,
			APIKey:  cfg.ClickUp.APIKey,
			TeamID:  cfg.ClickUp.TeamID,
			Timeout: cfg.ListTimeout(),
			Logger:  logger.With("source", model.SourceClickUp),
		}),
	}

	var tokens briefing.TokenResolver = app.Tokens
	if account == "" {
		// Without an account the Google sources report what is missing
		// instead of an unauthorized error.
		tokens = nil
		for _, src := range []model.SourceKind{model.SourceGmail, model.SourceCalendar} {
			fetchers[src] = unconfigured(src, "GOOGLE_ACCOUNT")
		}
	}

	engine := briefing.NewEngine(briefing.EngineConfig{
		Fetchers:      fetchers,
		Tokens:        tokens,
		GoogleAccount: account,
		Logger:        logger,
	})
	app.Service = briefing.NewService(engine, logger)
	return app, nil
}

func unconfigured(src model.SourceKind, missing ...string) briefing.Fetcher {
	err := &model.ConfigError{Source: src, Missing: missing}
	return briefing.FetcherFunc(func(context.Context, model.Query, period.Interval, string) ([]model.Item, error) {
		return nil, err
	})
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
