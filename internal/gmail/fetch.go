// Package gmail reads unread and recent mail metadata for briefings.
package gmail

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/DariyDar/astra/internal/credential"
	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"
	"github.com/DariyDar/astra/internal/util"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const user = "me"

// Config configures a Fetcher. Zero values select defaults.
type Config struct {
	// Account names the Google account in errors.
	Account string

	ListTimeout    time.Duration
	MessageTimeout time.Duration

	// Workers bounds concurrent metadata fetches.
	Workers int

	// Endpoint overrides the API base URL.
	Endpoint string

	Logger *slog.Logger
}

// Fetcher lists mailbox messages in a period and returns their metadata.
type Fetcher struct {
	cfg Config
}

func New(cfg Config) *Fetcher {
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 15 * time.Second
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{cfg: cfg}
}

// Fetch lists up to q.LimitPerSource messages matching the query in iv and
// fetches their headers concurrently. Messages whose metadata cannot be
// read are skipped; the list order is kept.
func (f *Fetcher) Fetch(ctx context.Context, q model.Query, iv period.Interval, token string) ([]model.Item, error) {
	if token == "" {
		return nil, &model.NotAuthorizedError{Source: model.SourceGmail, Account: f.cfg.Account}
	}
	opts := []option.ClientOption{option.WithHTTPClient(credential.BearerClient(ctx, token))}
	if f.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.cfg.Endpoint))
	}
	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	ids, err := f.list(ctx, svc, q, iv)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Item{}, nil
	}

	msgs := f.fetchMetadata(ctx, svc, ids)
	items := make([]model.Item, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, m.Item())
	}
	return items, nil
}

// SearchQuery builds the Gmail search expression for q over iv.
func SearchQuery(q model.Query, iv period.Interval) string {
	var parts []string
	if q.Type == model.QueryUnread {
		parts = append(parts, "is:unread")
	}
	if term := strings.TrimSpace(q.SearchTerm); term != "" {
		parts = append(parts, term)
	}
	parts = append(parts,
		"after:"+iv.After.Format("2006/01/02"),
		"before:"+iv.Before.Format("2006/01/02"),
	)
	return strings.Join(parts, " ")
}

func (f *Fetcher) list(ctx context.Context, svc *gmailv1.Service, q model.Query, iv period.Interval) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ListTimeout)
	defer cancel()

	resp, err := svc.Users.Messages.List(user).
		Q(SearchQuery(q, iv)).
		MaxResults(int64(q.LimitPerSource)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if len(ids) == q.LimitPerSource {
			break
		}
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (f *Fetcher) fetchMetadata(ctx context.Context, svc *gmailv1.Service, ids []string) []model.MailMessage {
	type job struct {
		idx int
		id  string
	}
	type result struct {
		idx int
		msg model.MailMessage
		err error
	}
	jobs := make(chan job, len(ids))
	results := make(chan result, len(ids))

	workerCount := min(f.cfg.Workers, len(ids))
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					results <- result{idx: j.idx, err: ctx.Err()}
					continue
				default:
				}
				msg, err := f.get(ctx, svc, j.id)
				results <- result{idx: j.idx, msg: msg, err: err}
			}
		}()
	}
	for i, id := range ids {
		jobs <- job{idx: i, id: id}
	}
	close(jobs)
	wg.Wait()
	close(results)

	slots := make([]*model.MailMessage, len(ids))
	for r := range results {
		if r.err != nil {
			f.cfg.Logger.Debug("skip gmail message", "id", ids[r.idx], "error", r.err)
			continue
		}
		m := r.msg
		slots[r.idx] = &m
	}
	out := make([]model.MailMessage, 0, len(ids))
	for _, m := range slots {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func (f *Fetcher) get(ctx context.Context, svc *gmailv1.Service, id string) (model.MailMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.MessageTimeout)
	defer cancel()

	msg, err := svc.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return model.MailMessage{}, fmt.Errorf("get message %s: %w", id, err)
	}

	var from, subject, date string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				from = h.Value
			case "subject":
				subject = h.Value
			case "date":
				date = h.Value
			}
		}
	}
	normalized := parseDateRFC3339(date)
	if normalized == "" {
		normalized = date
	}
	return model.MailMessage{
		Author:      from,
		Subject:     subject,
		Date:        normalized,
		TextPreview: util.Preview(html.UnescapeString(msg.Snippet)),
		Unread:      hasLabel(msg, "UNREAD"),
	}, nil
}

// Helpers

func parseDateRFC3339(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if t, err := mail.ParseDate(h); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	// Try common formats Gmail uses in Date header.
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, h); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func hasLabel(m *gmailv1.Message, id string) bool {
	if m == nil {
		return false
	}
	for _, l := range m.LabelIds {
		if l == id {
			return true
		}
	}
	return false
}
