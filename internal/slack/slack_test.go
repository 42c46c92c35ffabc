package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"

	slackapi "github.com/slack-go/slack"
)

var window = period.Interval{
	After:  time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	Before: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
}

type fakeDirectoryAPI struct {
	mu          sync.Mutex
	listCalls   int
	failList    bool
	channels    []slackapi.Channel
	users       []slackapi.User
	usersFailed bool
}

func (f *fakeDirectoryAPI) GetConversationsContext(_ context.Context, _ *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList {
		return nil, "", errors.New("ratelimited")
	}
	return f.channels, "", nil
}

func (f *fakeDirectoryAPI) GetUsersContext(_ context.Context, _ ...slackapi.GetUsersOption) ([]slackapi.User, error) {
	if f.usersFailed {
		return nil, errors.New("missing_scope")
	}
	return f.users, nil
}

func channel(id, name string, members int) slackapi.Channel {
	var ch slackapi.Channel
	ch.ID = id
	ch.Name = name
	ch.NumMembers = members
	return ch
}

func user(id, display string) slackapi.User {
	u := slackapi.User{ID: id, Name: id}
	u.Profile.DisplayName = display
	return u
}

type fakeHistory struct {
	mu       sync.Mutex
	calls    map[string]*slackapi.GetConversationHistoryParameters
	messages map[string][]slackapi.Message
	fail     map[string]bool
}

func (f *fakeHistory) GetConversationHistoryContext(_ context.Context, p *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]*slackapi.GetConversationHistoryParameters{}
	}
	f.calls[p.ChannelID] = p
	if f.fail[p.ChannelID] {
		return nil, errors.New("not_in_channel")
	}
	resp := &slackapi.GetConversationHistoryResponse{}
	msgs := f.messages[p.ChannelID]
	if len(msgs) > p.Limit {
		msgs = msgs[:p.Limit]
	}
	resp.Messages = msgs
	return resp, nil
}

func message(user, text, ts string, replies int) slackapi.Message {
	var m slackapi.Message
	m.User = user
	m.Text = text
	m.Timestamp = ts
	m.ReplyCount = replies
	return m
}

func messages(n int, text string) []slackapi.Message {
	out := make([]slackapi.Message, n)
	for i := range out {
		out[i] = message("U1", fmt.Sprintf("%s %d", text, i), "1773576000.000100", 0)
	}
	return out
}

func newTestFetcher(api *fakeDirectoryAPI, hist *fakeHistory) *Fetcher {
	dir := NewDirectory(api, "T1", nil)
	f := NewFetcher(Config{Token: "xoxp-test", TeamID: "T1"}, dir)
	f.history = hist
	return f
}

func TestPerChannel(t *testing.T) {
	tests := []struct {
		limit, n, want int
	}{
		{10, 5, 3},
		{10, 2, 5},
		{50, 5, 10},
		{11, 2, 6},
		{1, 1, 3},
		{10, 0, 0},
	}
	for _, tc := range tests {
		if got := PerChannel(tc.limit, tc.n); got != tc.want {
			t.Errorf("PerChannel(%d, %d) = %d; want %d", tc.limit, tc.n, got, tc.want)
		}
	}
}

func TestFetchTopChannelsFairShareAndTruncate(t *testing.T) {
	api := &fakeDirectoryAPI{
		channels: []slackapi.Channel{
			channel("C1", "small", 3),
			channel("C2", "general", 120),
			channel("C3", "dev", 40),
		},
		users: []slackapi.User{user("U1", "dariy")},
	}
	hist := &fakeHistory{messages: map[string][]slackapi.Message{
		"C1": messages(10, "small"),
		"C2": messages(10, "general"),
		"C3": messages(10, "dev"),
	}}
	f := newTestFetcher(api, hist)
	f.cfg.DefaultChannels = 2

	items, err := f.Fetch(context.Background(), model.Query{Type: model.QueryRecent, LimitPerSource: 5}, window, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := hist.calls["C1"]; ok {
		t.Fatal("smallest channel should not be read")
	}
	if p := hist.calls["C2"]; p == nil || p.Limit != 3 {
		t.Fatalf("general params = %+v, want limit 3", p)
	}
	if p := hist.calls["C2"]; p.Oldest != "1773532800.000000" || p.Latest != "1773619200.000000" {
		t.Fatalf("window = %s..%s", p.Oldest, p.Latest)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items after truncation, got %d", len(items))
	}
	// general sorts first, so its three messages lead.
	if items[0].String(model.FieldChannel) != "general" || items[3].String(model.FieldChannel) != "dev" {
		t.Fatalf("unexpected channel order: %s, %s", items[0].String(model.FieldChannel), items[3].String(model.FieldChannel))
	}
	if items[0].String(model.FieldAuthor) != "dariy" {
		t.Fatalf("author = %q", items[0].String(model.FieldAuthor))
	}
	if items[0].String(model.FieldDate) != "2026-03-15T12:00:00Z" {
		t.Fatalf("date = %q", items[0].String(model.FieldDate))
	}
}

func TestFetchNamedChannelsDropsFailures(t *testing.T) {
	api := &fakeDirectoryAPI{channels: []slackapi.Channel{
		channel("C1", "Launch", 10),
		channel("C2", "ops", 5),
	}}
	hist := &fakeHistory{
		messages: map[string][]slackapi.Message{
			"C1": {message("U9", "ship it https://example.com/pr/1", "1773576000.5", 4)},
		},
		fail: map[string]bool{"C2": true},
	}
	f := newTestFetcher(api, hist)

	q := model.Query{Type: model.QueryRecent, LimitPerSource: 10, SlackChannels: []string{"#launch", "C2", "missing"}}
	items, err := f.Fetch(context.Background(), q, window, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(hist.calls) != 2 {
		t.Fatalf("expected both resolved channels to be read, got %d", len(hist.calls))
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.String(model.FieldAuthor) != "U9" {
		t.Fatalf("unknown user should fall back to id, got %q", it.String(model.FieldAuthor))
	}
	if it.String(model.FieldThreadInfo) != "4 replies" {
		t.Fatalf("thread_info = %q", it.String(model.FieldThreadInfo))
	}
	links, _ := it.Get(model.FieldLinks)
	if !reflect.DeepEqual(links, []string{"https://example.com/pr/1"}) {
		t.Fatalf("links = %v", links)
	}
}

func TestFetchSearchFiltersMessages(t *testing.T) {
	api := &fakeDirectoryAPI{channels: []slackapi.Channel{channel("C1", "general", 10)}}
	hist := &fakeHistory{messages: map[string][]slackapi.Message{
		"C1": {
			message("U1", "Budget draft is ready", "1773576000.1", 0),
			message("U1", "lunch?", "1773576001.1", 0),
		},
	}}
	f := newTestFetcher(api, hist)

	q := model.Query{Type: model.QuerySearch, SearchTerm: "budget", LimitPerSource: 10}
	items, err := f.Fetch(context.Background(), q, window, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 || items[0].String(model.FieldText) != "Budget draft is ready" {
		t.Fatalf("items = %v", items)
	}
}

func TestFetchSearchOnlyScansChannelShare(t *testing.T) {
	api := &fakeDirectoryAPI{channels: []slackapi.Channel{channel("C1", "general", 10)}}
	msgs := append(messages(3, "lunch"), message("U1", "Budget draft is ready", "1773576000.1", 0))
	hist := &fakeHistory{messages: map[string][]slackapi.Message{"C1": msgs}}
	f := newTestFetcher(api, hist)

	q := model.Query{Type: model.QuerySearch, SearchTerm: "budget", LimitPerSource: 1}
	items, err := f.Fetch(context.Background(), q, window, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("match past the newest %d messages was returned: %v", minPerChannel, items)
	}
}

type countingHistory struct {
	inFlight, peak atomic.Int32
}

func (c *countingHistory) GetConversationHistoryContext(_ context.Context, _ *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return &slackapi.GetConversationHistoryResponse{}, nil
}

func TestFetchBoundsHistoryConcurrency(t *testing.T) {
	api := &fakeDirectoryAPI{}
	for i := 0; i < 10; i++ {
		api.channels = append(api.channels, channel(fmt.Sprintf("C%d", i), fmt.Sprintf("ch%d", i), 10+i))
	}
	hist := &countingHistory{}
	dir := NewDirectory(api, "T1", nil)
	f := NewFetcher(Config{Token: "xoxp-test", TeamID: "T1", DefaultChannels: 10}, dir)
	f.history = hist

	if _, err := f.Fetch(context.Background(), model.Query{Type: model.QueryRecent, LimitPerSource: 50}, window, ""); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p := hist.peak.Load(); p < 1 || p > historyConcurrency {
		t.Fatalf("peak concurrent history calls = %d, want 1..%d", p, historyConcurrency)
	}
}

func TestFetchMissingConfig(t *testing.T) {
	f := NewFetcher(Config{}, nil)
	_, err := f.Fetch(context.Background(), model.Query{LimitPerSource: 5}, window, "")
	var ce *model.ConfigError
	if !errors.As(err, &ce) || len(ce.Missing) != 2 {
		t.Fatalf("error = %v", err)
	}
}

func TestDirectoryLoadsOnceAndRetriesAfterFailure(t *testing.T) {
	api := &fakeDirectoryAPI{failList: true, channels: []slackapi.Channel{channel("C1", "general", 1)}}
	dir := NewDirectory(api, "T1", nil)
	ctx := context.Background()

	if err := dir.EnsureLoaded(ctx); err == nil {
		t.Fatal("expected load error")
	}
	api.failList = false
	if err := dir.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded retry: %v", err)
	}
	if err := dir.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded cached: %v", err)
	}
	if api.listCalls != 2 {
		t.Fatalf("channel list calls = %d, want 2", api.listCalls)
	}
	if got := dir.Resolve([]string{"GENERAL"}); len(got) != 1 || got[0].ID != "C1" {
		t.Fatalf("Resolve = %v", got)
	}
}

func TestDirectoryUserListFailureIsNotFatal(t *testing.T) {
	api := &fakeDirectoryAPI{usersFailed: true, channels: []slackapi.Channel{channel("C1", "general", 1)}}
	dir := NewDirectory(api, "T1", nil)
	if err := dir.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if dir.UserName("U1") != "U1" {
		t.Fatalf("UserName = %q", dir.UserName("U1"))
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1773576000.000100", "2026-03-15T12:00:00Z"},
		{"1773576000", "2026-03-15T12:00:00Z"},
		{"", ""},
		{"abc.1", ""},
	}
	for _, tc := range tests {
		if got := parseTimestamp(tc.in); got != tc.want {
			t.Errorf("parseTimestamp(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

// The fetcher talks to the real client over HTTP.
func TestFetchOverWebAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/conversations.list":
			fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C1","name":"general","num_members":12}],"response_metadata":{"next_cursor":""}}`)
		case "/users.list":
			fmt.Fprint(w, `{"ok":true,"members":[{"id":"U1","name":"dd","profile":{"display_name":"Dariy"}}],"response_metadata":{"next_cursor":""}}`)
		case "/conversations.history":
			if got := r.FormValue("channel"); got != "C1" {
				t.Errorf("channel = %q", got)
			}
			fmt.Fprint(w, `{"ok":true,"messages":[{"type":"message","user":"U1","text":"hello","ts":"1773576000.000100"}],"has_more":false}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			fmt.Fprint(w, `{"ok":false,"error":"unknown_method"}`)
		}
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(Config{Token: "xoxp-test", TeamID: "T1", APIURL: srv.URL + "/"}, nil)
	items, err := f.Fetch(context.Background(), model.Query{Type: model.QueryRecent, LimitPerSource: 10}, window, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 || items[0].String(model.FieldAuthor) != "Dariy" {
		t.Fatalf("items = %v", items)
	}
}
