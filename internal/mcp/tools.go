package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/DariyDar/astra/internal/briefing"
	"github.com/DariyDar/astra/internal/model"
)

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

const periodHelp = `Time period: "today", "yesterday", "last_3_days", "last_week", "last_month", or ISO range "2026-01-01/2026-01-20"`

const briefingDescription = `Aggregated multi-source query. Fetches data from Slack, Gmail, Calendar and ClickUp in a single call. Use this instead of making separate tool calls to each service.

Returns results grouped by source with only the requested fields. Failed sources return an error message instead of failing the call.

query_type options:
- "recent": latest items from each source (default)
- "unread": unread emails and recent Slack messages
- "search": search by keyword across sources (requires search_term)
- "digest": activity in a period

period options: "today", "yesterday", "last_3_days", "last_week", "last_month", or ISO range "2026-01-01/2026-01-20"`

func stringEnum(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func sourceNames() []string {
	out := make([]string, len(model.AllSources))
	for i, s := range model.AllSources {
		out[i] = string(s)
	}
	return out
}

func toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "briefing",
			Description: briefingDescription,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sources": map[string]any{
						"type":        "array",
						"items":       stringEnum(sourceNames()...),
						"description": `Which sources to query. Example: ["slack", "gmail", "calendar"]`,
					},
					"query_type": map[string]any{
						"type":        "string",
						"enum":        []string{"recent", "digest", "search", "unread"},
						"description": "Type of query",
						"default":     "recent",
					},
					"period": map[string]any{
						"type":        "string",
						"description": periodHelp,
						"default":     briefing.DefaultPeriod,
					},
					"search_term": map[string]any{
						"type":        "string",
						"description": `Search keyword (required when query_type is "search")`,
					},
					"slack_channels": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Specific Slack channels to query (by name). If omitted, queries the most active channels.",
					},
					"limit_per_source": map[string]any{
						"type":        "number",
						"description": fmt.Sprintf("Max items per source (default %d, max %d)", briefing.DefaultLimit, briefing.MaxLimit),
						"default":     briefing.DefaultLimit,
					},
					"fields": map[string]any{
						"type": "array",
						"items": stringEnum(
							"author", "date", "text", "text_preview", "subject", "links", "thread_info",
							"status", "assignee", "due_date", "channel", "end_date", "attendees", "is_unread",
						),
						"description": "Which fields to include in results. Omit for all fields.",
					},
				},
				"required": []string{"sources"},
			},
		},
		{
			Name:        "search_everywhere",
			Description: `Search a keyword across all available sources (Slack, Gmail, Calendar, ClickUp) in parallel. Shortcut for briefing with query_type="search". Returns matching items grouped by source with text preview.`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"search_term": map[string]any{
						"type":        "string",
						"description": "Keyword or phrase to search for",
					},
					"period": map[string]any{
						"type":        "string",
						"description": `Time period to search within (default: "last_month")`,
						"default":     briefing.DefaultSearchPeriod,
					},
					"limit_per_source": map[string]any{
						"type":        "number",
						"description": fmt.Sprintf("Max results per source (default %d)", briefing.DefaultSearchLimit),
						"default":     briefing.DefaultSearchLimit,
					},
				},
				"required": []string{"search_term"},
			},
		},
	}
}

// callTool dispatches a tool call. Every failure becomes an Outcome.
func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) briefing.Outcome {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	switch name {
	case "briefing":
		var req briefing.BriefingRequest
		if err := decodeArgs(args, &req); err != nil {
			return briefing.Outcome{Err: err.Error()}
		}
		return s.briefer.Briefing(ctx, req)
	case "search_everywhere":
		var req briefing.SearchRequest
		if err := decodeArgs(args, &req); err != nil {
			return briefing.Outcome{Err: err.Error()}
		}
		return s.briefer.SearchEverywhere(ctx, req)
	default:
		return briefing.Outcome{Err: fmt.Sprintf("unknown tool: %s", name)}
	}
}

// decodeArgs accepts fractional limits the way JSON numbers arrive from
// clients, truncating them to integers. Huge values are capped at
// briefing.MaxLimit.
func decodeArgs(args json.RawMessage, v any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(args, &raw); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if lim, ok := raw["limit_per_source"]; ok && string(lim) != "null" {
		var f float64
		if err := json.Unmarshal(lim, &f); err != nil {
			return fmt.Errorf("invalid arguments: limit_per_source must be a number")
		}
		// Clamp before converting; int() of an out-of-range float is undefined.
		f = math.Max(math.Min(f, briefing.MaxLimit), math.MinInt32)
		raw["limit_per_source"], _ = json.Marshal(int(f))
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(normalized, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
