// Package briefing fans one query out to every requested source and merges
// the answers, keeping each source's failure to itself.
package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"

	"github.com/google/uuid"
)

// Fetcher retrieves normalized items from one source. token is the
// resolved Google access token for sources that use it and "" otherwise.
type Fetcher interface {
	Fetch(ctx context.Context, q model.Query, iv period.Interval, token string) ([]model.Item, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q model.Query, iv period.Interval, token string) ([]model.Item, error)

func (f FetcherFunc) Fetch(ctx context.Context, q model.Query, iv period.Interval, token string) ([]model.Item, error) {
	return f(ctx, q, iv, token)
}

// TokenResolver hands out the Google access token for an account, or ""
// when the account has no stored credential.
type TokenResolver interface {
	ResolveToken(ctx context.Context, account string) (string, error)
}

type EngineConfig struct {
	Fetchers map[model.SourceKind]Fetcher

	// Tokens and GoogleAccount supply the token for gmail and calendar.
	// With no resolver those sources receive "".
	Tokens        TokenResolver
	GoogleAccount string

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine executes aggregate queries.
type Engine struct {
	fetchers map[model.SourceKind]Fetcher
	tokens   TokenResolver
	account  string
	now      func() time.Time
	logger   *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		fetchers: cfg.Fetchers,
		tokens:   cfg.Tokens,
		account:  cfg.GoogleAccount,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if e.fetchers == nil {
		e.fetchers = map[model.SourceKind]Fetcher{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

type outcome struct {
	items []model.Item
	err   error
}

// Execute validates q, resolves its period and the shared Google token,
// then runs every source concurrently and waits for all of them. A source
// that fails or panics is reported in the result; only validation errors
// are returned as err.
func (e *Engine) Execute(ctx context.Context, q model.Query) (*model.AggregateResult, error) {
	start := e.now()
	q, err := Normalize(q)
	if err != nil {
		return nil, err
	}
	iv, err := period.Resolve(q.Period, start)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := e.logger.With("query_id", id)
	logger.Info("briefing query",
		"sources", q.Sources,
		"query_type", q.Type,
		"period", q.Period,
		"after", iv.After,
		"before", iv.Before,
		"limit", q.LimitPerSource,
	)

	token, tokenErr := e.googleToken(ctx, q.Sources)
	if tokenErr != nil {
		logger.Warn("google token unavailable", "error", tokenErr)
	}

	outcomes := make([]outcome, len(q.Sources))
	var wg sync.WaitGroup
	for i, src := range q.Sources {
		i, src := i, src
		if src.UsesGoogleOAuth() && tokenErr != nil {
			outcomes[i] = outcome{err: tokenErr}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = e.run(ctx, src, q, iv, token)
		}()
	}
	wg.Wait()

	res := &model.AggregateResult{
		Query:   q,
		Results: make(map[model.SourceKind]model.SourceResult, len(q.Sources)),
		Meta: model.Meta{
			SourcesQueried: q.Sources,
			SourcesOK:      []model.SourceKind{},
			SourcesFailed:  []model.SourceKind{},
		},
	}
	for i, src := range q.Sources {
		o := outcomes[i]
		if o.err != nil {
			res.Results[src] = model.SourceResult{Err: o.err.Error()}
			res.Meta.SourcesFailed = append(res.Meta.SourcesFailed, src)
			logger.Warn("source failed", "source", src, "error", o.err)
			continue
		}
		items := make([]model.Item, len(o.items))
		for j, it := range o.items {
			items[j] = Project(it, q.Fields)
		}
		res.Results[src] = model.SourceResult{Items: items}
		res.Meta.SourcesOK = append(res.Meta.SourcesOK, src)
		res.Meta.TotalItems += len(items)
	}
	res.Meta.QueryTimeMs = e.now().Sub(start).Milliseconds()

	logger.Info("briefing done",
		"sources_ok", res.Meta.SourcesOK,
		"sources_failed", res.Meta.SourcesFailed,
		"items", res.Meta.TotalItems,
		"time_ms", res.Meta.QueryTimeMs,
	)
	return res, nil
}

// googleToken resolves the shared token once when any source needs it.
func (e *Engine) googleToken(ctx context.Context, sources []model.SourceKind) (string, error) {
	needed := false
	for _, s := range sources {
		if s.UsesGoogleOAuth() {
			needed = true
			break
		}
	}
	if !needed || e.tokens == nil {
		return "", nil
	}
	return e.tokens.ResolveToken(ctx, e.account)
}

func (e *Engine) run(ctx context.Context, src model.SourceKind, q model.Query, iv period.Interval, token string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("source panicked", "source", src, "panic", r, "stack", string(debug.Stack()))
			out = outcome{err: fmt.Errorf("%s: internal error: %v", src, r)}
		}
	}()

	f, ok := e.fetchers[src]
	if !ok || f == nil {
		return outcome{err: fmt.Errorf("%s: source not available", src)}
	}
	if !src.UsesGoogleOAuth() {
		token = ""
	}
	items, err := f.Fetch(ctx, q, iv, token)
	if err != nil {
		return outcome{err: err}
	}
	if items == nil {
		items = []model.Item{}
	}
	return outcome{items: items}
}
