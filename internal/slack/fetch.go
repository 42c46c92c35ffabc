// Package slack reads recent channel history for briefings.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"
	"github.com/DariyDar/astra/internal/util"

	slackapi "github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

const (
	minPerChannel = 3

	// parallel history requests per query
	historyConcurrency = 4
)

// HistoryAPI is the part of the Slack client used to read messages.
type HistoryAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error)
}

type Config struct {
	// Token is a user (xoxp) or bot (xoxb) token.
	Token  string
	TeamID string

	// DefaultChannels is how many of the largest channels are read when
	// the query names none. Defaults to 5.
	DefaultChannels int

	Timeout time.Duration

	// APIURL overrides https://slack.com/api/.
	APIURL string

	Logger *slog.Logger
}

// Fetcher reads message history from a set of channels.
type Fetcher struct {
	cfg     Config
	dir     *Directory
	history HistoryAPI
}

// NewFetcher builds a fetcher on the Slack Web API. When dir is nil a
// Directory sharing the same client is created.
func NewFetcher(cfg Config, dir *Directory) *Fetcher {
	if cfg.DefaultChannels <= 0 {
		cfg.DefaultChannels = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var opts []slackapi.Option
	if cfg.APIURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(cfg.APIURL))
	}
	client := slackapi.New(cfg.Token, opts...)
	if dir == nil {
		dir = NewDirectory(client, cfg.TeamID, cfg.Logger)
	}
	return &Fetcher{cfg: cfg, dir: dir, history: client}
}

// Directory returns the channel and user cache the fetcher reads from.
func (f *Fetcher) Directory() *Directory { return f.dir }

// Fetch reads at most q.LimitPerSource messages from the requested
// channels, or from the largest channels when none are named. Each channel
// gets an equal share of the limit, never less than three messages; a
// channel whose history fails is left out. For search queries the term is
// matched only against each channel's newest share of messages, so older
// matches past that share are not found.
func (f *Fetcher) Fetch(ctx context.Context, q model.Query, iv period.Interval, _ string) ([]model.Item, error) {
	var missing []string
	if f.cfg.Token == "" {
		missing = append(missing, "SLACK_USER_TOKEN")
	}
	if f.cfg.TeamID == "" {
		missing = append(missing, "SLACK_TEAM_ID")
	}
	if len(missing) > 0 {
		return nil, &model.ConfigError{Source: model.SourceSlack, Missing: missing}
	}

	if err := f.dir.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	var channels []Channel
	if len(q.SlackChannels) > 0 {
		channels = f.dir.Resolve(q.SlackChannels)
	} else {
		channels = f.dir.Top(f.cfg.DefaultChannels)
	}
	if len(channels) == 0 {
		return []model.Item{}, nil
	}

	perChannel := PerChannel(q.LimitPerSource, len(channels))
	term := ""
	if q.Type == model.QuerySearch {
		term = strings.TrimSpace(q.SearchTerm)
	}

	batches := make([][]model.Item, len(channels))
	var g errgroup.Group
	g.SetLimit(historyConcurrency)
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			items, err := f.channelHistory(ctx, ch, perChannel, iv, term)
			if err != nil {
				f.cfg.Logger.Warn("slack channel skipped", "channel", ch.Name, "error", err)
				return nil
			}
			batches[i] = items
			return nil
		})
	}
	// Every goroutine returns nil; failed channels are logged and skipped.
	g.Wait()

	out := make([]model.Item, 0, q.LimitPerSource)
	for _, b := range batches {
		for _, it := range b {
			if len(out) == q.LimitPerSource {
				return out, nil
			}
			out = append(out, it)
		}
	}
	return out, nil
}

// PerChannel splits limit across n channels, rounding up, with a floor of
// three per channel.
func PerChannel(limit, n int) int {
	if n <= 0 {
		return 0
	}
	return max(minPerChannel, (limit+n-1)/n)
}

func (f *Fetcher) channelHistory(ctx context.Context, ch Channel, limit int, iv period.Interval, term string) ([]model.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	resp, err := f.history.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: ch.ID,
		Limit:     limit,
		Oldest:    timestamp(iv.After),
		Latest:    timestamp(iv.Before),
	})
	if err != nil {
		return nil, fmt.Errorf("history of #%s: %w", ch.Name, err)
	}

	items := make([]model.Item, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if term != "" && !util.ContainsFold(m.Text, term) {
			continue
		}
		items = append(items, f.toMessage(ch, m.Msg).Item())
	}
	return items, nil
}

func (f *Fetcher) toMessage(ch Channel, m slackapi.Msg) model.ChatMessage {
	author := m.Username
	if m.User != "" {
		author = f.dir.UserName(m.User)
	}
	if author == "" {
		author = "unknown"
	}
	out := model.ChatMessage{
		Channel:     ch.Name,
		Author:      author,
		Text:        m.Text,
		TextPreview: util.Preview(m.Text),
		Date:        parseTimestamp(m.Timestamp),
		Links:       util.ExtractURLs(m.Text),
	}
	if m.ReplyCount > 0 {
		out.ThreadInfo = fmt.Sprintf("%d replies", m.ReplyCount)
	}
	return out
}

// timestamp formats t as a Slack "seconds.micros" timestamp.
func timestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

func parseTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return ""
	}
	var nsec int64
	if frac != "" {
		frac = (frac + "000000000")[:9]
		nsec, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, nsec).UTC().Format(time.RFC3339)
}
