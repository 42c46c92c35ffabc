package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/DariyDar/astra/internal/model"
)

// Defaults applied by the two entry points.
var (
	DefaultSources = []model.SourceKind{model.SourceSlack, model.SourceGmail, model.SourceCalendar}

	SearchFields = []model.FieldName{
		model.FieldAuthor,
		model.FieldDate,
		model.FieldSubject,
		model.FieldTextPreview,
		model.FieldChannel,
		model.FieldStatus,
		model.FieldLinks,
	}
)

const (
	DefaultPeriod       = "today"
	DefaultSearchPeriod = "last_month"
	DefaultSearchLimit  = 5
)

// BriefingRequest is the caller's view of a general query. Nil or empty
// values take the defaults.
type BriefingRequest struct {
	Sources        []string `json:"sources,omitempty"`
	QueryType      string   `json:"query_type,omitempty"`
	Period         string   `json:"period,omitempty"`
	SearchTerm     string   `json:"search_term,omitempty"`
	SlackChannels  []string `json:"slack_channels,omitempty"`
	LimitPerSource *int     `json:"limit_per_source,omitempty"`
	Fields         []string `json:"fields,omitempty"`
}

// SearchRequest is a keyword search across every source.
type SearchRequest struct {
	SearchTerm     string `json:"search_term"`
	Period         string `json:"period,omitempty"`
	LimitPerSource *int   `json:"limit_per_source,omitempty"`
}

// Outcome is what a caller always gets back: a result or an error message.
type Outcome struct {
	Result *model.AggregateResult
	Err    string
}

// OK reports whether the query produced a result.
func (o Outcome) OK() bool { return o.Err == "" && o.Result != nil }

// MarshalJSON encodes the result itself, or {"error": msg}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.OK() {
		msg := o.Err
		if msg == "" {
			msg = "no result"
		}
		return json.Marshal(struct {
			Error string `json:"error"`
		}{msg})
	}
	return json.Marshal(o.Result)
}

// Service is the query façade. Its methods never panic and never return
// an error value; failures are carried in the Outcome.
type Service struct {
	engine *Engine
	logger *slog.Logger
}

func NewService(engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}
}

// Briefing runs a general query.
func (s *Service) Briefing(ctx context.Context, req BriefingRequest) Outcome {
	sources := make([]model.SourceKind, 0, len(req.Sources))
	for _, name := range req.Sources {
		sources = append(sources, model.SourceKind(name))
	}
	if len(sources) == 0 {
		sources = append(sources, DefaultSources...)
	}
	q := model.Query{
		Sources:        sources,
		Type:           model.QueryType(req.QueryType),
		Period:         req.Period,
		SearchTerm:     req.SearchTerm,
		SlackChannels:  req.SlackChannels,
		LimitPerSource: limitOr(req.LimitPerSource, DefaultLimit),
	}
	if q.Type == "" {
		q.Type = model.QueryRecent
	}
	if q.Period == "" {
		q.Period = DefaultPeriod
	}
	for _, f := range req.Fields {
		q.Fields = append(q.Fields, model.FieldName(f))
	}
	return s.execute(ctx, "briefing", q)
}

// SearchEverywhere searches every source for req.SearchTerm.
func (s *Service) SearchEverywhere(ctx context.Context, req SearchRequest) Outcome {
	q := model.Query{
		Sources:        append([]model.SourceKind(nil), model.AllSources...),
		Type:           model.QuerySearch,
		Period:         req.Period,
		SearchTerm:     req.SearchTerm,
		LimitPerSource: limitOr(req.LimitPerSource, DefaultSearchLimit),
		Fields:         append([]model.FieldName(nil), SearchFields...),
	}
	if q.Period == "" {
		q.Period = DefaultSearchPeriod
	}
	return s.execute(ctx, "search_everywhere", q)
}

func (s *Service) execute(ctx context.Context, op string, q model.Query) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("query panicked", "op", op, "panic", r)
			out = Outcome{Err: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	res, err := s.engine.Execute(ctx, q)
	if err != nil {
		s.logger.Info("query rejected", "op", op, "error", err)
		return Outcome{Err: err.Error()}
	}
	return Outcome{Result: res}
}

// limitOr clamps an explicit limit; nil selects def.
func limitOr(n *int, def int) int {
	if n == nil {
		return def
	}
	return max(1, min(*n, MaxLimit))
}
