package slack

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
)

// DirectoryAPI is the part of the Slack client the Directory needs.
type DirectoryAPI interface {
	GetConversationsContext(ctx context.Context, params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error)
	GetUsersContext(ctx context.Context, options ...slackapi.GetUsersOption) ([]slackapi.User, error)
}

// Channel is a conversation the token can read.
type Channel struct {
	ID      string
	Name    string
	Members int
}

// Directory caches the workspace's channels and user display names.
// It is loaded once per process by EnsureLoaded; a failed load is retried
// on the next call. Safe for concurrent use.
type Directory struct {
	api     DirectoryAPI
	teamID  string
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	loaded   bool
	channels []Channel
	users    map[string]string
}

func NewDirectory(api DirectoryAPI, teamID string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		api:     api,
		teamID:  teamID,
		timeout: 15 * time.Second,
		logger:  logger,
		users:   map[string]string{},
	}
}

// EnsureLoaded fetches channels and users unless that already succeeded.
// A failure to list users is logged and leaves authors as raw user IDs.
func (d *Directory) EnsureLoaded(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}

	channels, err := d.loadChannels(ctx)
	if err != nil {
		return err
	}
	users, err := d.loadUsers(ctx)
	if err != nil {
		d.logger.Warn("slack user directory unavailable", "error", err)
		users = map[string]string{}
	}

	d.channels = channels
	d.users = users
	d.loaded = true
	d.logger.Info("slack directory loaded", "channels", len(channels), "users", len(users))
	return nil
}

func (d *Directory) loadChannels(ctx context.Context) ([]Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var out []Channel
	params := &slackapi.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           200,
		TeamID:          d.teamID,
	}
	for {
		chans, cursor, err := d.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list slack channels: %w", err)
		}
		for _, ch := range chans {
			out = append(out, Channel{ID: ch.ID, Name: ch.Name, Members: ch.NumMembers})
		}
		if cursor == "" {
			return out, nil
		}
		params.Cursor = cursor
	}
}

func (d *Directory) loadUsers(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var opts []slackapi.GetUsersOption
	if d.teamID != "" {
		opts = append(opts, slackapi.GetUsersOptionTeamID(d.teamID))
	}
	users, err := d.api.GetUsersContext(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("list slack users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = displayName(u)
	}
	return names, nil
}

func displayName(u slackapi.User) string {
	switch {
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.RealName != "":
		return u.RealName
	case u.Name != "":
		return u.Name
	}
	return u.ID
}

// UserName returns the display name for id, or id itself when unknown.
func (d *Directory) UserName(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name, ok := d.users[id]; ok {
		return name
	}
	return id
}

// Resolve maps channel names (case-insensitive, optional leading '#') or
// raw IDs to channels. Unknown names are skipped; duplicates collapse.
func (d *Directory) Resolve(names []string) []Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := map[string]bool{}
	var out []Channel
	for _, n := range names {
		want := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(n), "#"))
		for _, ch := range d.channels {
			if strings.ToLower(ch.Name) != want && ch.ID != n {
				continue
			}
			if !seen[ch.ID] {
				seen[ch.ID] = true
				out = append(out, ch)
			}
			break
		}
	}
	return out
}

// Top returns the n channels with the most members.
func (d *Directory) Top(n int) []Channel {
	d.mu.Lock()
	sorted := append([]Channel(nil), d.channels...)
	d.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Members > sorted[j].Members
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
