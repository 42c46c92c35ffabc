package clickup

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"
	"github.com/DariyDar/astra/internal/util"
)

// Fetcher returns ClickUp tasks for a briefing. It ignores the bearer
// token; ClickUp authenticates with the configured API key.
type Fetcher struct {
	cfg Config
}

func NewFetcher(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg}
}

// Fetch lists open tasks. A query with a search term reads the first page
// of tasks and keeps those whose name or description contains the term;
// matches beyond that page are not seen. Other queries list tasks due in iv.
func (f *Fetcher) Fetch(ctx context.Context, q model.Query, iv period.Interval, _ string) ([]model.Item, error) {
	var missing []string
	if f.cfg.APIKey == "" {
		missing = append(missing, "CLICKUP_API_KEY")
	}
	if f.cfg.TeamID == "" {
		missing = append(missing, "CLICKUP_TEAM_ID")
	}
	if len(missing) > 0 {
		return nil, &model.ConfigError{Source: model.SourceClickUp, Missing: missing}
	}
	client := NewClient(f.cfg)

	tq := TaskQuery{Page: 0, Subtasks: true}
	term := strings.TrimSpace(q.SearchTerm)
	if term == "" {
		tq.DueAfter = iv.After
		tq.DueBefore = iv.Before
	}
	tasks, err := client.TeamTasks(ctx, tq)
	if err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, min(len(tasks), q.LimitPerSource))
	for _, t := range tasks {
		if len(items) == q.LimitPerSource {
			break
		}
		if term != "" && !util.ContainsFold(t.Name, term) && !util.ContainsFold(t.Description, term) {
			continue
		}
		items = append(items, toTask(t).Item())
	}
	return items, nil
}

func toTask(t Task) model.Task {
	names := make([]string, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		if a.Username != "" {
			names = append(names, a.Username)
		}
	}
	out := model.Task{
		Subject:     t.Name,
		Status:      t.Status.Status,
		Assignee:    strings.Join(names, ", "),
		DueDate:     dueDate(t.DueDate),
		TextPreview: util.Preview(t.Description),
	}
	if t.URL != "" {
		out.Links = []string{t.URL}
	}
	return out
}

func dueDate(ms json.Number) string {
	if ms == "" {
		return ""
	}
	n, err := strconv.ParseInt(string(ms), 10, 64)
	if err != nil {
		return ""
	}
	return time.UnixMilli(n).UTC().Format(time.RFC3339)
}
