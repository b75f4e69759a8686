package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// channelResolver turns a channel name such as #siding-ops into its ID.
type channelResolver struct {
	client *slack.Client
	mu     sync.RWMutex
	cache  map[string]string
}

func newChannelResolver(client *slack.Client) *channelResolver {
	return &channelResolver{client: client, cache: make(map[string]string)}
}

// resolve accepts a channel ID, "#name" or "name".
func (r *channelResolver) resolve(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("slack channel is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}
	name := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.lookup(ctx, name)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()
	return id, nil
}

func (r *channelResolver) lookup(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           1000,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := r.client.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("list slack channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("slack channel %q not found", name)
		}
		params.Cursor = cursor
	}
}

// isChannelID reports whether s looks like a Slack channel ID (C or G
// followed by upper-case alphanumerics).
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	if s[0] != 'C' && s[0] != 'G' {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
