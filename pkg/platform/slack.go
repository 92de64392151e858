package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// SlackConfig configures the Slack-backed Client adapter.
type SlackConfig struct {
	BotToken string
	// ChannelForUser resolves a Slack channel id (typically a DM channel)
	// for a given Warden user id. Left nil, SlackClient treats userID as
	// the channel id directly.
	ChannelForUser func(userID string) string
}

// SlackClient adapts the Client interface to the Slack chat platform. It
// follows the teacher's nil-safe optional-service pattern
// (pkg/slack/service.go): a nil *SlackClient, or one constructed with an
// empty BotToken, is safe to call and becomes a no-op rather than a panic,
// so wiring code can pass it through uniformly whether or not Slack is
// configured for a given deployment.
type SlackClient struct {
	api    *slack.Client
	config SlackConfig
}

// NewSlackClient returns a usable client, or a nil-behaving stub when cfg
// has no BotToken (mirrors the teacher's NewService).
func NewSlackClient(cfg SlackConfig) *SlackClient {
	if cfg.BotToken == "" {
		return nil
	}
	return &SlackClient{api: slack.New(cfg.BotToken), config: cfg}
}

func (s *SlackClient) channel(userID string) string {
	if s.config.ChannelForUser != nil {
		return s.config.ChannelForUser(userID)
	}
	return userID
}

func (s *SlackClient) SendMessage(ctx context.Context, userID, text string) error {
	if s == nil {
		return nil
	}
	_, _, err := s.api.PostMessageContext(ctx, s.channel(userID), slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack send message: %w", err)
	}
	return nil
}

func (s *SlackClient) SendTyping(ctx context.Context, userID string, _ time.Duration) error {
	if s == nil {
		return nil
	}
	// Slack's Web API has no first-class typing indicator for bot users;
	// this is a deliberate no-op, documented rather than faked.
	_ = ctx
	_ = userID
	return nil
}

func (s *SlackClient) ResolveHandle(ctx context.Context, userID string) error {
	if s == nil {
		return nil
	}
	_, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return fmt.Errorf("slack resolve handle: %w", err)
	}
	return nil
}

func (s *SlackClient) ListDialogs(ctx context.Context) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	params := &slack.GetConversationsParameters{Types: []string{"im"}}
	channels, _, err := s.api.GetConversationsContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("slack list dialogs: %w", err)
	}
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, c.User)
	}
	return out, nil
}

func (s *SlackClient) HistorySince(ctx context.Context, userID, afterMsgID string, pageSize int) ([]HistoryMessage, error) {
	if s == nil {
		return nil, nil
	}
	history, err := s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: s.channel(userID),
		Oldest:    afterMsgID,
		Limit:     pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("slack history: %w", err)
	}
	out := make([]HistoryMessage, 0, len(history.Messages))
	for _, m := range history.Messages {
		out = append(out, HistoryMessage{UserID: userID, PlatformMsgID: m.Timestamp, Text: m.Text})
	}
	return out, nil
}
