// Package notify posts scan summaries to Slack.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Poster is the part of *slack.Client the notifier uses.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts plain-text messages to one channel.
type SlackNotifier struct {
	api       Poster
	channelID string
	logger    *zap.Logger
}

// NewSlackNotifier builds a notifier backed by a Slack web API client whose
// HTTP calls time out after timeout. Extra options are passed to slack.New.
func NewSlackNotifier(token, channelID string, timeout time.Duration, logger *zap.Logger, opts ...slack.Option) *SlackNotifier {
	opts = append([]slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}, opts...)
	return NewWithPoster(slack.New(token, opts...), channelID, logger)
}

// NewWithPoster wraps an existing client.
func NewWithPoster(api Poster, channelID string, logger *zap.Logger) *SlackNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackNotifier{api: api, channelID: channelID, logger: logger}
}

// Notify posts text to the configured channel.
func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	_, ts, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", n.channelID, err)
	}
	n.logger.Debug("posted scan summary", zap.String("channel", n.channelID), zap.String("ts", ts))
	return nil
}
