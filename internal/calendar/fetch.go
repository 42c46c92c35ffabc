// Package calendar lists events from the primary Google calendar.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DariyDar/astra/internal/credential"
	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"

	calendarv3 "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	calendarID = "primary"
	noTitle    = "(no title)"
)

type Config struct {
	Account  string
	Timeout  time.Duration
	Endpoint string
}

// Fetcher returns events starting inside the query period.
type Fetcher struct {
	cfg Config
}

func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Fetcher{cfg: cfg}
}

func (f *Fetcher) Fetch(ctx context.Context, q model.Query, iv period.Interval, token string) ([]model.Item, error) {
	if token == "" {
		return nil, &model.NotAuthorizedError{Source: model.SourceCalendar, Account: f.cfg.Account}
	}
	opts := []option.ClientOption{option.WithHTTPClient(credential.BearerClient(ctx, token))}
	if f.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.cfg.Endpoint))
	}
	svc, err := calendarv3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	call := svc.Events.List(calendarID).
		TimeMin(iv.After.Format(time.RFC3339)).
		TimeMax(iv.Before.Format(time.RFC3339)).
		MaxResults(int64(q.LimitPerSource)).
		SingleEvents(true).
		OrderBy("startTime")
	if term := strings.TrimSpace(q.SearchTerm); term != "" {
		call = call.Q(term)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	items := make([]model.Item, 0, len(resp.Items))
	for _, ev := range resp.Items {
		if len(items) == q.LimitPerSource {
			break
		}
		items = append(items, toEvent(ev).Item())
	}
	return items, nil
}

func toEvent(ev *calendarv3.Event) model.CalendarEvent {
	out := model.CalendarEvent{
		Subject: ev.Summary,
		Date:    when(ev.Start),
		EndDate: when(ev.End),
		Status:  ev.Status,
	}
	if out.Subject == "" {
		out.Subject = noTitle
	}
	emails := make([]string, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	out.Attendees = strings.Join(emails, ", ")
	if ev.HtmlLink != "" {
		out.Links = []string{ev.HtmlLink}
	}
	return out
}

// when prefers the timed start over the all-day date.
func when(t *calendarv3.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}
