package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts messages to one Slack channel.
type SlackNotifier struct {
	client   *slack.Client
	channel  string
	resolver *channelResolver
}

// NewSlackNotifier creates a Slack notifier. Extra client options are passed to slack.New.
func NewSlackNotifier(token, channel string, opts ...slack.Option) *SlackNotifier {
	client := slack.New(token, opts...)
	return &SlackNotifier{
		client:   client,
		channel:  channel,
		resolver: newChannelResolver(client),
	}
}

// Notify posts the message text to the configured channel. A channel given
// by name is looked up once and cached.
func (n *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	channelID, err := n.resolver.resolve(ctx, n.channel)
	if err != nil {
		return err
	}
	_, _, err = n.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(FormatText(msg), false),
	)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}

// FormatText renders a message for chat delivery.
func FormatText(msg Message) string {
	prefix := fmt.Sprintf("*%s* `%s`", msg.Event, msg.Serial)
	if msg.Indent != "" {
		prefix += fmt.Sprintf(" (indent %s)", msg.Indent)
	}
	if msg.Text == "" {
		return prefix
	}
	return prefix + ": " + msg.Text
}
